package fetch

import (
	"context"
	"time"

	"github.com/tradewatch/tradewatch/internal/models"
)

// JobsResult is the outcome of one jobs fetch.
type JobsResult struct {
	Rows  []models.JobRow
	Stats Stats
}

// FetchJobs returns up to limit jobs.
func (f *Fetcher) FetchJobs(ctx context.Context, accessToken string, since time.Time, limit int) (*JobsResult, error) {
	nodes, stats, err := f.run(ctx, accessToken, jobsQuery, since, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]models.JobRow, 0, len(nodes))
	for _, node := range nodes {
		rows = append(rows, models.JobRow{
			ID:        models.Str(node, "id"),
			Number:    models.Str(node, "number"),
			Title:     models.Str(node, "title"),
			Status:    models.Str(node, "status"),
			Total:     models.Amount(node["total"]),
			ClientID:  models.OptionalID(node, "client"),
			StartAt:   models.Str(node, "startAt"),
			EndAt:     models.Str(node, "endAt"),
			CreatedAt: models.Str(node, "createdAt"),
		})
	}
	return &JobsResult{Rows: rows, Stats: stats}, nil
}
