package fetch

import (
	"context"
	"time"

	"github.com/tradewatch/tradewatch/internal/models"
)

// PaymentsResult is the outcome of one payments fetch.
type PaymentsResult struct {
	Rows  []models.PaymentRow
	Stats Stats
}

// FetchPayments returns up to limit recorded payments.
func (f *Fetcher) FetchPayments(ctx context.Context, accessToken string, since time.Time, limit int) (*PaymentsResult, error) {
	nodes, stats, err := f.run(ctx, accessToken, paymentsQuery, since, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]models.PaymentRow, 0, len(nodes))
	for _, node := range nodes {
		rows = append(rows, models.PaymentRow{
			ID:         models.Str(node, "id"),
			Amount:     models.Amount(node["amount"]),
			Method:     models.Str(node, "method"),
			ClientID:   models.OptionalID(node, "client"),
			InvoiceID:  models.OptionalID(node, "invoice"),
			ReceivedAt: models.Str(node, "receivedAt"),
		})
	}
	return &PaymentsResult{Rows: rows, Stats: stats}, nil
}
