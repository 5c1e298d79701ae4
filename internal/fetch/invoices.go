package fetch

import (
	"context"
	"time"

	"github.com/tradewatch/tradewatch/internal/models"
)

// InvoicesResult is the outcome of one invoices fetch.
type InvoicesResult struct {
	Rows  []models.InvoiceRow
	Stats Stats
}

// FetchInvoices returns up to limit invoices.
func (f *Fetcher) FetchInvoices(ctx context.Context, accessToken string, since time.Time, limit int) (*InvoicesResult, error) {
	nodes, stats, err := f.run(ctx, accessToken, invoicesQuery, since, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]models.InvoiceRow, 0, len(nodes))
	for _, node := range nodes {
		rows = append(rows, models.InvoiceRow{
			ID:       models.Str(node, "id"),
			Number:   models.Str(node, "number"),
			Status:   models.Str(node, "status"),
			Subtotal: models.Amount(node["subtotal"]),
			Total:    models.Amount(node["total"]),
			Balance:  models.Amount(node["balance"]),
			ClientID: models.OptionalID(node, "client"),
			IssuedAt: models.Str(node, "issuedAt"),
			DueAt:    models.Str(node, "dueAt"),
		})
	}
	return &InvoicesResult{Rows: rows, Stats: stats}, nil
}
