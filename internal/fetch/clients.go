package fetch

import (
	"context"
	"time"

	"github.com/tradewatch/tradewatch/internal/models"
)

// ClientsResult is the outcome of one clients fetch.
type ClientsResult struct {
	Rows  []models.ClientRow
	Stats Stats
}

// FetchClients returns up to limit customer records. Address fields are empty
// when the grant lacks the address scope and the reduced query served the
// fetch.
func (f *Fetcher) FetchClients(ctx context.Context, accessToken string, since time.Time, limit int) (*ClientsResult, error) {
	nodes, stats, err := f.run(ctx, accessToken, clientsQuery, since, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]models.ClientRow, 0, len(nodes))
	for _, node := range nodes {
		row := models.ClientRow{
			ID:        models.Str(node, "id"),
			Name:      models.Str(node, "name"),
			Company:   models.Str(node, "company"),
			Email:     models.Str(node, "email"),
			Phone:     models.Str(node, "phone"),
			CreatedAt: models.Str(node, "createdAt"),
		}
		if addr, ok := node["billingAddress"].(map[string]interface{}); ok {
			row.City = models.Str(addr, "city")
			row.Province = models.Str(addr, "province")
		}
		rows = append(rows, row)
	}
	return &ClientsResult{Rows: rows, Stats: stats}, nil
}
