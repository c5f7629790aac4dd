package xapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"tweet-pruner/internal/domain"
	"tweet-pruner/internal/infra/metrics"
)

const defaultBaseURL = "https://api.twitter.com"

// Client работает с X API v2 от имени пользователя.
type Client struct {
	http    *http.Client
	baseURL string
}

var _ domain.Deleter = (*Client)(nil)

// NewClient создаёт клиента с OAuth2 user-context токеном.
func NewClient(ctx context.Context, accessToken, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
	httpClient.Timeout = timeout
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// User — владелец ленты.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Me возвращает пользователя, которому принадлежит токен.
func (c *Client) Me(ctx context.Context) (User, error) {
	var payload struct {
		Data User `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/2/users/me", nil, "users_me", &payload); err != nil {
		return User{}, err
	}
	if payload.Data.ID == "" {
		return User{}, errors.New("xapi: empty user in response")
	}
	return payload.Data, nil
}

// Delete удаляет пост. 404 возвращается как domain.ErrNotFound.
func (c *Client) Delete(ctx context.Context, itemID string) error {
	var payload struct {
		Data struct {
			Deleted bool `json:"deleted"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodDelete, "/2/tweets/"+url.PathEscape(itemID), nil, "delete_tweet", &payload); err != nil {
		return err
	}
	if !payload.Data.Deleted {
		return fmt.Errorf("%w: deletion not confirmed for %s", domain.ErrTransient, itemID)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, operation string, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("xapi: build request: %w", err)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("xapi", operation, path, start, err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		metrics.ObserveNetworkRequest("xapi", operation, path, start, err)
		return fmt.Errorf("%w: read response: %v", domain.ErrTransient, err)
	}
	if err := statusError(resp, body); err != nil {
		metrics.ObserveNetworkRequest("xapi", operation, path, start, err)
		return err
	}
	metrics.ObserveNetworkRequest("xapi", operation, path, start, nil)
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("xapi: decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response, body []byte) error {
	if resp.StatusCode < 300 {
		return nil
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > 300 {
		detail = detail[:300]
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, detail)
	case resp.StatusCode == http.StatusTooManyRequests:
		rl := &domain.RateLimitError{}
		if reset, err := strconv.ParseInt(resp.Header.Get("x-rate-limit-reset"), 10, 64); err == nil && reset > 0 {
			rl.ResetAt = time.Unix(reset, 0).UTC()
		}
		return rl
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", domain.ErrUnauthorized, resp.StatusCode, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", domain.ErrTransient, resp.StatusCode, detail)
	}
}
