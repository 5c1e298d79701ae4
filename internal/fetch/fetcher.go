// Package fetch implements the paginated, cost-aware record fetchers. Each
// resource walks the upstream cursor connection with an adaptive page size,
// degrades to a reduced query when the tenant's grant cannot serve the rich
// one, and hands back canonical rows.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradewatch/tradewatch/internal/config"
	"github.com/tradewatch/tradewatch/internal/graphql"
	"github.com/tradewatch/tradewatch/internal/metrics"
)

// Executor runs one GraphQL call. Satisfied by *graphql.Client.
type Executor interface {
	Execute(ctx context.Context, query string, variables map[string]interface{}, accessToken string) (*graphql.Response, error)
}

// Stats describes one completed fetch: pages requested (degraded retries
// included), summed requested cost, and whether the reduced query was used.
type Stats struct {
	Pages     int
	TotalCost float64
	Degraded  bool
}

// Fetcher executes paginated fetches for every resource.
type Fetcher struct {
	executor Executor
	cfg      config.FetchConfig
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewFetcher builds a fetcher. Zero-valued config fields fall back to the
// defaults in config.Default.
func NewFetcher(executor Executor, cfg config.FetchConfig, logger zerolog.Logger, m *metrics.Metrics) *Fetcher {
	def := config.Default().Fetch
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MinPageSize <= 0 {
		cfg.MinPageSize = def.MinPageSize
	}
	if cfg.PageCeiling <= 0 {
		cfg.PageCeiling = def.PageCeiling
	}
	if cfg.RecordCap <= 0 {
		cfg.RecordCap = def.RecordCap
	}
	if cfg.TargetCost <= 0 {
		cfg.TargetCost = def.TargetCost
	}
	return &Fetcher{executor: executor, cfg: cfg, logger: logger, metrics: m}
}

// resourceQuery pairs a resource's rich and reduced query documents with the
// root field the response payload hangs off.
type resourceQuery struct {
	name    string
	root    string
	rich    string
	reduced string
}

type connectionPayload struct {
	Edges []struct {
		Node map[string]interface{} `json:"node"`
	} `json:"edges"`
	PageInfo struct {
		HasNextPage bool   `json:"hasNextPage"`
		EndCursor   string `json:"endCursor"`
	} `json:"pageInfo"`
}

// run walks the cursor connection until the upstream reports no next page,
// the row limit is met, or the page ceiling is hit. The ceiling counts every
// request, degraded retries included, so an upstream that keeps claiming
// hasNextPage cannot spin the loop forever.
func (f *Fetcher) run(ctx context.Context, accessToken string, q resourceQuery, since time.Time, limit int) ([]map[string]interface{}, Stats, error) {
	if limit <= 0 || limit > f.cfg.RecordCap {
		limit = f.cfg.RecordCap
	}

	sinceArg := ""
	if !since.IsZero() {
		sinceArg = since.UTC().Format(time.RFC3339)
	}

	query := q.rich
	size := f.cfg.PageSize
	cursor := ""
	var nodes []map[string]interface{}
	var stats Stats

	for stats.Pages < f.cfg.PageCeiling && len(nodes) < limit {
		first := size
		if remaining := limit - len(nodes); first > remaining {
			first = remaining
		}

		variables := map[string]interface{}{"first": first}
		if cursor != "" {
			variables["after"] = cursor
		}
		if sinceArg != "" {
			variables["since"] = sinceArg
		}

		resp, err := f.executor.Execute(ctx, query, variables, accessToken)
		stats.Pages++
		if err != nil {
			if !stats.Degraded && graphql.Degradable(err) {
				// Retry the same page with the reduced query; rows fetched so
				// far are kept.
				stats.Degraded = true
				query = q.reduced
				f.logger.Warn().
					Str("resource", q.name).
					Err(err).
					Msg("rich query not available for this grant, degrading")
				continue
			}
			return nil, stats, err
		}

		page, err := decodeConnection(resp.Data, q.root)
		if err != nil {
			return nil, stats, fmt.Errorf("decode %s page: %w", q.name, err)
		}

		for _, edge := range page.Edges {
			if edge.Node != nil {
				nodes = append(nodes, edge.Node)
			}
		}
		f.metrics.RecordPage(q.name, len(page.Edges))

		if resp.Cost != nil {
			stats.TotalCost += resp.Cost.RequestedCost
			if resp.Cost.RequestedCost > f.cfg.TargetCost {
				next := int(float64(size) * f.cfg.TargetCost / resp.Cost.RequestedCost)
				if next < f.cfg.MinPageSize {
					next = f.cfg.MinPageSize
				}
				// The page size only ever shrinks within a fetch.
				if next < size {
					f.logger.Debug().
						Str("resource", q.name).
						Int("from", size).
						Int("to", next).
						Float64("requested_cost", resp.Cost.RequestedCost).
						Msg("shrinking page size to fit cost target")
					size = next
				}
			}
		}

		if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == "" {
			break
		}
		cursor = page.PageInfo.EndCursor
	}

	if len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes, stats, nil
}

func decodeConnection(data json.RawMessage, root string) (*connectionPayload, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	raw, ok := envelope[root]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("response missing %q connection", root)
	}
	var page connectionPayload
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
