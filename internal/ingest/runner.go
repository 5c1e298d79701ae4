// Package ingest drives full tenant syncs: acquire a usable token, fetch
// every resource, and report what came back.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "github.com/tradewatch/tradewatch/internal/errors"
	"github.com/tradewatch/tradewatch/internal/fetch"
	"github.com/tradewatch/tradewatch/internal/metrics"
	"github.com/tradewatch/tradewatch/internal/models"
)

// Sync statuses.
const (
	StatusOK           = "ok"
	StatusPartial      = "partial"
	StatusFailed       = "failed"
	StatusNotConnected = "not_connected"
)

// TokenSource hands out access tokens per tenant. Satisfied by
// *token.Manager.
type TokenSource interface {
	GetToken(ctx context.Context, tenantID string, force bool) (*models.TokenBundle, error)
}

// ResourceResult summarizes one resource's fetch within a sync run.
type ResourceResult struct {
	Rows     int     `json:"rows"`
	Pages    int     `json:"pages"`
	Cost     float64 `json:"cost"`
	Degraded bool    `json:"degraded,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// SyncResult is the outcome of one tenant sync run.
type SyncResult struct {
	RunID      string                    `json:"run_id"`
	TenantID   string                    `json:"tenant_id"`
	Status     string                    `json:"status"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
	TotalCost  float64                   `json:"total_cost"`
	Resources  map[string]ResourceResult `json:"resources"`

	Quotes   []models.QuoteRow   `json:"quotes,omitempty"`
	Invoices []models.InvoiceRow `json:"invoices,omitempty"`
	Jobs     []models.JobRow     `json:"jobs,omitempty"`
	Clients  []models.ClientRow  `json:"clients,omitempty"`
	Payments []models.PaymentRow `json:"payments,omitempty"`
}

// Runner executes tenant syncs.
type Runner struct {
	tokens  TokenSource
	fetcher *fetch.Fetcher
	limit   int
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewRunner builds a runner. limit caps rows per resource; zero means the
// fetcher's record cap applies.
func NewRunner(tokens TokenSource, fetcher *fetch.Fetcher, limit int, logger zerolog.Logger, m *metrics.Metrics) *Runner {
	return &Runner{tokens: tokens, fetcher: fetcher, limit: limit, logger: logger, metrics: m}
}

// SyncTenant fetches every resource for one tenant, limited to records
// changed after since (zero means no lower bound). A resource failure does
// not abort the remaining resources; the run is marked partial instead. Token
// problems abort the whole run since no resource can proceed without one.
func (r *Runner) SyncTenant(ctx context.Context, tenantID string, since time.Time) (*SyncResult, error) {
	result := &SyncResult{
		RunID:     uuid.NewString(),
		TenantID:  tenantID,
		StartedAt: time.Now().UTC(),
		Resources: make(map[string]ResourceResult),
	}

	log := r.logger.With().Str("tenant_id", tenantID).Str("run_id", result.RunID).Logger()

	bundle, err := r.tokens.GetToken(ctx, tenantID, false)
	if err != nil {
		result.FinishedAt = time.Now().UTC()
		var nc *apperrors.ErrNotConnected
		if errors.As(err, &nc) {
			result.Status = StatusNotConnected
			r.metrics.RecordSync(StatusNotConnected)
			log.Warn().Str("reason", nc.Reason).Msg("sync skipped, tenant not connected")
			return result, err
		}
		result.Status = StatusFailed
		r.metrics.RecordSync(StatusFailed)
		return result, err
	}

	failures := 0
	run := func(name string, fn func() (int, fetch.Stats, error)) {
		if err := ctx.Err(); err != nil {
			failures++
			result.Resources[name] = ResourceResult{Error: err.Error()}
			return
		}
		rows, stats, err := fn()
		res := ResourceResult{
			Rows:     rows,
			Pages:    stats.Pages,
			Cost:     stats.TotalCost,
			Degraded: stats.Degraded,
		}
		if err != nil {
			failures++
			res.Error = err.Error()
			log.Error().Err(err).Str("resource", name).Msg("resource fetch failed")
		}
		result.Resources[name] = res
		result.TotalCost += stats.TotalCost
	}

	run("quotes", func() (int, fetch.Stats, error) {
		out, err := r.fetcher.FetchQuotes(ctx, bundle.AccessToken, since, r.limit)
		if err != nil {
			return 0, fetch.Stats{}, err
		}
		result.Quotes = out.Rows
		return len(out.Rows), out.Stats, nil
	})
	run("invoices", func() (int, fetch.Stats, error) {
		out, err := r.fetcher.FetchInvoices(ctx, bundle.AccessToken, since, r.limit)
		if err != nil {
			return 0, fetch.Stats{}, err
		}
		result.Invoices = out.Rows
		return len(out.Rows), out.Stats, nil
	})
	run("jobs", func() (int, fetch.Stats, error) {
		out, err := r.fetcher.FetchJobs(ctx, bundle.AccessToken, since, r.limit)
		if err != nil {
			return 0, fetch.Stats{}, err
		}
		result.Jobs = out.Rows
		return len(out.Rows), out.Stats, nil
	})
	run("clients", func() (int, fetch.Stats, error) {
		out, err := r.fetcher.FetchClients(ctx, bundle.AccessToken, since, r.limit)
		if err != nil {
			return 0, fetch.Stats{}, err
		}
		result.Clients = out.Rows
		return len(out.Rows), out.Stats, nil
	})
	run("payments", func() (int, fetch.Stats, error) {
		out, err := r.fetcher.FetchPayments(ctx, bundle.AccessToken, since, r.limit)
		if err != nil {
			return 0, fetch.Stats{}, err
		}
		result.Payments = out.Rows
		return len(out.Rows), out.Stats, nil
	})

	result.FinishedAt = time.Now().UTC()
	switch {
	case failures == 0:
		result.Status = StatusOK
	case failures < len(result.Resources):
		result.Status = StatusPartial
	default:
		result.Status = StatusFailed
	}
	r.metrics.RecordSync(result.Status)

	log.Info().
		Str("status", result.Status).
		Float64("total_cost", result.TotalCost).
		Dur("duration", result.FinishedAt.Sub(result.StartedAt)).
		Msg("tenant sync finished")

	return result, nil
}
