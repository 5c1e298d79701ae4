package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tradewatch/tradewatch/internal/config"
	apperrors "github.com/tradewatch/tradewatch/internal/errors"
	"github.com/tradewatch/tradewatch/internal/fetch"
	"github.com/tradewatch/tradewatch/internal/graphql"
	"github.com/tradewatch/tradewatch/internal/models"
)

type staticTokens struct {
	bundle *models.TokenBundle
	err    error
}

func (s *staticTokens) GetToken(context.Context, string, bool) (*models.TokenBundle, error) {
	return s.bundle, s.err
}

// resourceExecutor serves one small page per resource, with optional
// per-resource failures.
type resourceExecutor struct {
	fail map[string]error
}

func rootOf(query string) string {
	for _, root := range []string{"quotes", "invoices", "jobs", "clients", "payments"} {
		if strings.Contains(query, root+"(first:") {
			return root
		}
	}
	return ""
}

func (r *resourceExecutor) Execute(_ context.Context, query string, _ map[string]interface{}, _ string) (*graphql.Response, error) {
	root := rootOf(query)
	if err, ok := r.fail[root]; ok {
		return nil, err
	}
	data, _ := json.Marshal(map[string]interface{}{
		root: map[string]interface{}{
			"edges": []map[string]interface{}{
				{"node": map[string]interface{}{"id": root + "-1", "amount": 10, "total": 10}},
				{"node": map[string]interface{}{"id": root + "-2", "amount": 20, "total": 20}},
			},
			"pageInfo": map[string]interface{}{"hasNextPage": false, "endCursor": ""},
		},
	})
	return &graphql.Response{Data: data, Cost: &graphql.CostInfo{RequestedCost: 100}}, nil
}

func newRunner(exec fetch.Executor, tokens TokenSource) *Runner {
	f := fetch.NewFetcher(exec, config.Default().Fetch, zerolog.Nop(), nil)
	return NewRunner(tokens, f, 0, zerolog.Nop(), nil)
}

func TestSyncTenantAllResources(t *testing.T) {
	tokens := &staticTokens{bundle: &models.TokenBundle{AccessToken: "tok"}}
	runner := newRunner(&resourceExecutor{}, tokens)

	result, err := runner.SyncTenant(context.Background(), "t1", time.Time{})
	require.NoError(t, err)
	require.Equal(t, StatusOK, result.Status)
	require.NotEmpty(t, result.RunID)
	require.Len(t, result.Resources, 5)
	for name, res := range result.Resources {
		require.Equal(t, 2, res.Rows, name)
		require.Empty(t, res.Error, name)
	}
	require.Equal(t, 500.0, result.TotalCost)
	require.Len(t, result.Quotes, 2)
	require.Len(t, result.Payments, 2)
}

func TestSyncTenantPartialFailure(t *testing.T) {
	tokens := &staticTokens{bundle: &models.TokenBundle{AccessToken: "tok"}}
	exec := &resourceExecutor{fail: map[string]error{
		"jobs": &graphql.APIError{Message: "Internal error"},
	}}
	runner := newRunner(exec, tokens)

	result, err := runner.SyncTenant(context.Background(), "t1", time.Time{})
	require.NoError(t, err)
	require.Equal(t, StatusPartial, result.Status)
	require.NotEmpty(t, result.Resources["jobs"].Error)
	require.Equal(t, 2, result.Resources["quotes"].Rows)
	require.Empty(t, result.Jobs)
}

func TestSyncTenantAllResourcesFail(t *testing.T) {
	tokens := &staticTokens{bundle: &models.TokenBundle{AccessToken: "tok"}}
	fail := map[string]error{}
	for _, root := range []string{"quotes", "invoices", "jobs", "clients", "payments"} {
		fail[root] = &graphql.APIError{Message: "Internal error"}
	}
	runner := newRunner(&resourceExecutor{fail: fail}, tokens)

	result, err := runner.SyncTenant(context.Background(), "t1", time.Time{})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
}

func TestSyncTenantNotConnected(t *testing.T) {
	tokens := &staticTokens{err: &apperrors.ErrNotConnected{TenantID: "t1", Reason: models.ReauthRefreshTokenInvalid}}
	runner := newRunner(&resourceExecutor{}, tokens)

	result, err := runner.SyncTenant(context.Background(), "t1", time.Time{})
	require.Error(t, err)
	require.Equal(t, StatusNotConnected, result.Status)
	require.Empty(t, result.Resources)
}

func TestSyncTenantTokenFailure(t *testing.T) {
	tokens := &staticTokens{err: fmt.Errorf("provider unavailable")}
	runner := newRunner(&resourceExecutor{}, tokens)

	result, err := runner.SyncTenant(context.Background(), "t1", time.Time{})
	require.Error(t, err)
	require.Equal(t, StatusFailed, result.Status)
}
