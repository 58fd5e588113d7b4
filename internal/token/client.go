// Package token issues and fetches short-lived media-session tokens.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shojbahmed330/voicebook/internal/core"
	"github.com/shojbahmed330/voicebook/internal/domain"
)

// Client fetches tokens from the token-issuing endpoint. Every failure
// mode (transport error, non-2xx, empty token) collapses into
// core.ErrTokenUnavailable; callers never distinguish them.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Token(ctx context.Context, channel domain.SessionID, identity uint32) (string, error) {
	q := url.Values{}
	q.Set("channelName", string(channel))
	q.Set("uid", strconv.FormatUint(uint64(identity), 10))
	endpoint := c.baseURL + "/api/token?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrTokenUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrTokenUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Str("module", "token").Int("status", resp.StatusCode).Str("channel", string(channel)).Msg("token endpoint refused")
		return "", fmt.Errorf("%w: status %d", core.ErrTokenUnavailable, resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrTokenUnavailable, err)
	}
	if body.Token == "" {
		return "", fmt.Errorf("%w: empty token", core.ErrTokenUnavailable)
	}
	return body.Token, nil
}
