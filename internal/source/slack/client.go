package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"digestd/internal/digest"
	"digestd/internal/source"
)

const defaultBaseURL = "https://slack.com/api"

// Web API Tier 3 allows ~50 requests per minute; stay below it so a large
// channel list does not trip the provider limiter in the first place.
const requestsPerMinute = 45

// client is a minimal Slack Web API client: bearer token auth, form-encoded
// GET calls, JSON responses. Transport-level errors and HTTP statuses are
// mapped to categorized source errors here so the collector never sees raw
// HTTP details.
type client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

func newClient(token string, timeout time.Duration) *client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		baseURL: defaultBaseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 5),
	}
}

// apiResult is satisfied by every wire type that embeds apiResponse.
type apiResult interface {
	ok() bool
	apiError() string
}

// get calls one Web API method and decodes the response into result, which
// must embed apiResponse. Slack signals most failures as 200 + ok:false.
func (c *client) get(ctx context.Context, method string, params url.Values, result apiResult) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return source.TransientError(digest.SourceSlack, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+method+"?"+params.Encode(), nil)
	if err != nil {
		return source.ConfigError(digest.SourceSlack, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return source.TransientError(digest.SourceSlack, fmt.Errorf("%s: %w", method, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return source.RateLimitError(digest.SourceSlack, retryAfter(resp), fmt.Errorf("%s: rate limited", method))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return source.AuthError(digest.SourceSlack, fmt.Errorf("%s: status %d", method, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return source.TransientError(digest.SourceSlack, fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return source.TransientError(digest.SourceSlack, fmt.Errorf("%s: reading response: %w", method, err))
	}
	if err := json.Unmarshal(body, result); err != nil {
		return source.TransientError(digest.SourceSlack, fmt.Errorf("%s: decoding response: %w", method, err))
	}
	if !result.ok() {
		return apiError(method, result.apiError())
	}
	return nil
}

// apiError maps Slack's ok:false error strings onto failure categories.
func apiError(method, code string) error {
	err := fmt.Errorf("%s: %s", method, code)
	switch code {
	case "invalid_auth", "not_authed", "token_revoked", "token_expired", "account_inactive":
		return source.AuthError(digest.SourceSlack, err)
	case "missing_scope", "invalid_arguments", "channel_not_found":
		return source.ConfigError(digest.SourceSlack, err)
	case "ratelimited":
		return source.RateLimitError(digest.SourceSlack, 0, err)
	default:
		return source.TransientError(digest.SourceSlack, err)
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if h := resp.Header.Get("Retry-After"); h != "" {
		if seconds, err := strconv.Atoi(h); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

func (r *apiResponse) ok() bool         { return r.OK }
func (r *apiResponse) apiError() string { return r.Error }
