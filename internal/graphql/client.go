package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradewatch/tradewatch/internal/metrics"
)

// CostInfo is the point-budget telemetry the upstream attaches to responses.
type CostInfo struct {
	RequestedCost      float64
	ActualCost         float64
	MaximumAvailable   float64
	CurrentlyAvailable float64
	RestoreRate        float64
}

// Response is a successful execution: raw data plus optional cost telemetry.
type Response struct {
	Data json.RawMessage
	Cost *CostInfo
}

// Options configures a Client.
type Options struct {
	Endpoint    string
	APIVersion  string
	MaxRetries  int
	BaseBackoff time.Duration
	Timeout     time.Duration
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

// Client executes single GraphQL calls against the upstream, normalizing every
// failure into the typed taxonomy before it propagates. Only RateLimitedError
// is retried here.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	apiVersion  string
	maxRetries  int
	baseBackoff time.Duration
	logger      zerolog.Logger
	metrics     *metrics.Metrics

	mu  sync.Mutex
	rng *rand.Rand

	// sleep is swappable so tests can observe backoff without waiting.
	sleep func(context.Context, time.Duration) error
}

// NewClient creates a GraphQL client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	baseBackoff := opts.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		endpoint:    opts.Endpoint,
		apiVersion:  opts.APIVersion,
		maxRetries:  opts.MaxRetries,
		baseBackoff: baseBackoff,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs one query, retrying rate-limited attempts with exponential
// backoff and jitter. All other classifications propagate immediately.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]interface{}, accessToken string) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries+1; attempt++ {
		resp, err := c.executeOnce(ctx, query, variables, accessToken)
		if err == nil {
			c.metrics.RecordGraphQL(ClassOK, costOf(resp))
			return resp, nil
		}

		var rl *RateLimitedError
		if !errors.As(err, &rl) {
			return nil, err
		}
		lastErr = err

		if attempt > c.maxRetries {
			break
		}

		delay := c.backoff(attempt)
		c.logger.Debug().
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("rate limited, backing off")
		if c.metrics != nil {
			c.metrics.GraphQLRetries.Inc()
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// backoff computes base × 2^(attempt−1) × [1.0, 1.25).
func (c *Client) backoff(attempt int) time.Duration {
	c.mu.Lock()
	jitter := 1.0 + c.rng.Float64()*0.25
	c.mu.Unlock()

	d := float64(c.baseBackoff) * float64(int64(1)<<uint(attempt-1)) * jitter
	return time.Duration(d)
}

func costOf(resp *Response) float64 {
	if resp == nil || resp.Cost == nil {
		return 0
	}
	return resp.Cost.RequestedCost
}

// wire shapes

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code           string   `json:"code"`
		RequestID      string   `json:"requestId"`
		RequiredScopes []string `json:"requiredScopes"`
	} `json:"extensions"`
}

type graphqlResponse struct {
	Data       json.RawMessage `json:"data"`
	Errors     []graphqlError  `json:"errors"`
	Extensions struct {
		Cost *struct {
			RequestedQueryCost float64 `json:"requestedQueryCost"`
			ActualQueryCost    float64 `json:"actualQueryCost"`
			ThrottleStatus     struct {
				MaximumAvailable   float64 `json:"maximumAvailable"`
				CurrentlyAvailable float64 `json:"currentlyAvailable"`
				RestoreRate        float64 `json:"restoreRate"`
			} `json:"throttleStatus"`
		} `json:"cost"`
	} `json:"extensions"`
}

// executeOnce issues a single call and classifies the outcome. The body is
// parsed on every status code; the upstream embeds structured errors
// regardless of HTTP status.
func (c *Client) executeOnce(ctx context.Context, query string, variables map[string]interface{}, accessToken string) (*Response, error) {
	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("encode request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if c.apiVersion != "" {
		req.Header.Set("X-API-Version", c.apiVersion)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &APIError{Message: fmt.Sprintf("transport: %v", err)}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("read body: %v", err)}
	}

	var parsed graphqlResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		// 429 without a parseable body still classifies as throttled.
		if httpResp.StatusCode == http.StatusTooManyRequests {
			return nil, c.rateLimited(httpResp.Header, nil, "throttled")
		}
		c.metrics.RecordGraphQL(ClassAPIError, 0)
		return nil, &APIError{
			Code:    strconv.Itoa(httpResp.StatusCode),
			Message: fmt.Sprintf("unparseable response (status %d)", httpResp.StatusCode),
		}
	}

	cost := parseCost(&parsed)

	if classified := c.classify(&parsed, cost, httpResp); classified != nil {
		return nil, classified
	}

	if len(parsed.Data) == 0 || string(parsed.Data) == "null" {
		c.metrics.RecordGraphQL(ClassAPIError, costFloat(cost))
		return nil, &APIError{Message: "empty data in response"}
	}

	return &Response{Data: parsed.Data, Cost: cost}, nil
}

// classify maps the structured error list into the taxonomy, in priority
// order: throttled, then scope problems, then the first structured error.
func (c *Client) classify(parsed *graphqlResponse, cost *CostInfo, httpResp *http.Response) error {
	if len(parsed.Errors) == 0 {
		if httpResp.StatusCode == http.StatusTooManyRequests {
			return c.rateLimited(httpResp.Header, cost, "throttled")
		}
		return nil
	}

	for _, e := range parsed.Errors {
		if e.Extensions.Code == "THROTTLED" || throttlePattern.MatchString(e.Message) {
			return c.rateLimited(httpResp.Header, cost, e.Message)
		}
	}

	for _, e := range parsed.Errors {
		if scopePattern.MatchString(e.Message) {
			missing := e.Extensions.RequiredScopes
			if len(missing) == 0 {
				missing = extractScopes(e.Message)
			}
			c.metrics.RecordGraphQL(ClassMissingScopes, costFloat(cost))
			return &MissingScopesError{Missing: missing, Message: e.Message}
		}
	}

	first := parsed.Errors[0]
	msgs := make([]string, 0, len(parsed.Errors))
	for _, e := range parsed.Errors {
		msgs = append(msgs, e.Message)
	}
	c.metrics.RecordGraphQL(ClassAPIError, costFloat(cost))
	return &APIError{
		Code:       first.Extensions.Code,
		RequestID:  first.Extensions.RequestID,
		Message:    first.Message,
		ActionHint: actionHint(first.Message),
		Errors:     msgs,
	}
}

// rateLimited builds a RateLimitedError with the best available retry-after:
// the Retry-After header, else the cost deficit over the restore rate, else a
// fixed fallback.
func (c *Client) rateLimited(headers http.Header, cost *CostInfo, message string) error {
	retryAfter := 2 * time.Second

	if v := headers.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			retryAfter = time.Duration(secs * float64(time.Second))
		}
	} else if cost != nil && cost.RestoreRate > 0 && cost.RequestedCost > cost.CurrentlyAvailable {
		deficit := cost.RequestedCost - cost.CurrentlyAvailable
		retryAfter = time.Duration(deficit / cost.RestoreRate * float64(time.Second))
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
	}

	c.metrics.RecordGraphQL(ClassRateLimited, costFloat(cost))
	return &RateLimitedError{RetryAfter: retryAfter, Cost: cost, Message: message}
}

func parseCost(parsed *graphqlResponse) *CostInfo {
	raw := parsed.Extensions.Cost
	if raw == nil {
		return nil
	}
	return &CostInfo{
		RequestedCost:      raw.RequestedQueryCost,
		ActualCost:         raw.ActualQueryCost,
		MaximumAvailable:   raw.ThrottleStatus.MaximumAvailable,
		CurrentlyAvailable: raw.ThrottleStatus.CurrentlyAvailable,
		RestoreRate:        raw.ThrottleStatus.RestoreRate,
	}
}

func costFloat(cost *CostInfo) float64 {
	if cost == nil {
		return 0
	}
	return cost.RequestedCost
}
