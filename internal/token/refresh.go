package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tradewatch/tradewatch/internal/config"
)

// grant is the provider's answer to a refresh-token exchange.
type grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	Scope        string
}

// invalidGrantError marks a refresh the provider rejected because the stored
// refresh token is dead. It is terminal: retrying cannot succeed and the
// connection must be parked for reauthorization.
type invalidGrantError struct {
	status int
	body   string
}

func (e *invalidGrantError) Error() string {
	return fmt.Sprintf("provider rejected refresh token (status %d): %s", e.status, e.body)
}

func isInvalidGrant(err error) bool {
	var ig *invalidGrantError
	return errors.As(err, &ig)
}

// refresher performs the raw refresh-token grant. It posts the form itself
// instead of going through an oauth2.TokenSource because the caller needs the
// response body to tell a dead refresh token apart from a transient failure.
type refresher struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string

	now func() time.Time
}

func newRefresher(provider config.ProviderConfig, timeout time.Duration) *refresher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &refresher{
		httpClient:   &http.Client{Timeout: timeout},
		tokenURL:     provider.TokenURL,
		clientID:     provider.ClientID,
		clientSecret: provider.ClientSecret,
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Phrases some providers put in plain-text or non-standard error bodies when
// the refresh token itself is the problem.
var invalidGrantPhrases = []string{
	"invalid_grant",
	"invalid refresh token",
	"refresh token expired",
	"refresh token revoked",
	"token has been revoked",
}

func (r *refresher) refresh(ctx context.Context, refreshToken string) (*grant, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {r.clientID},
		"client_secret": {r.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read refresh response: %w", err)
	}

	var parsed tokenResponse
	parseErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK {
		if looksInvalidGrant(resp.StatusCode, parsed.Error, string(body)) {
			return nil, &invalidGrantError{status: resp.StatusCode, body: errorSummary(parsed, body)}
		}
		return nil, fmt.Errorf("refresh failed with status %d: %s", resp.StatusCode, errorSummary(parsed, body))
	}
	if parseErr != nil {
		return nil, fmt.Errorf("parse refresh response: %w", parseErr)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("refresh response missing access_token")
	}

	g := &grant{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		Scope:        parsed.Scope,
	}
	if parsed.ExpiresIn > 0 {
		exp := r.now().Add(time.Duration(parsed.ExpiresIn) * time.Second).UTC()
		g.ExpiresAt = &exp
	}
	return g, nil
}

func looksInvalidGrant(status int, errCode, body string) bool {
	if status != http.StatusBadRequest && status != http.StatusUnauthorized {
		return false
	}
	if errCode == "invalid_grant" {
		return true
	}
	lower := strings.ToLower(body)
	for _, phrase := range invalidGrantPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func errorSummary(parsed tokenResponse, body []byte) string {
	if parsed.Error != "" {
		if parsed.ErrorDescription != "" {
			return parsed.Error + ": " + parsed.ErrorDescription
		}
		return parsed.Error
	}
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
