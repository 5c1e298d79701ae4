package fetch

import (
	"context"
	"time"

	"github.com/tradewatch/tradewatch/internal/models"
)

// QuotesResult is the outcome of one quotes fetch.
type QuotesResult struct {
	Rows  []models.QuoteRow
	Stats Stats
}

// FetchQuotes returns up to limit quotes for the tenant the token belongs to.
func (f *Fetcher) FetchQuotes(ctx context.Context, accessToken string, since time.Time, limit int) (*QuotesResult, error) {
	nodes, stats, err := f.run(ctx, accessToken, quotesQuery, since, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]models.QuoteRow, 0, len(nodes))
	for _, node := range nodes {
		rows = append(rows, models.QuoteRow{
			ID:        models.Str(node, "id"),
			Number:    models.Str(node, "number"),
			Title:     models.Str(node, "title"),
			Status:    models.Str(node, "status"),
			Total:     models.Amount(node["total"]),
			ClientID:  models.OptionalID(node, "client"),
			CreatedAt: models.Str(node, "createdAt"),
			UpdatedAt: models.Str(node, "updatedAt"),
		})
	}
	return &QuotesResult{Rows: rows, Stats: stats}, nil
}
