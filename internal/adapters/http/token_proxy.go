package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/shojbahmed330/voicebook/internal/token"
)

// CORSMiddleware opens the API to browser clients on other origins and
// short-circuits preflight requests.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// TokenHandler serves GET /api/token. With an upstream configured it is
// a pass-through proxy; otherwise tokens are minted locally.
type TokenHandler struct {
	upstream string
	minter   *token.Minter
	limiter  *RateLimiter
	client   *http.Client
}

func NewTokenHandler(upstream string, minter *token.Minter, limiter *RateLimiter) *TokenHandler {
	return &TokenHandler{
		upstream: upstream,
		minter:   minter,
		limiter:  limiter,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *TokenHandler) Handle(c *gin.Context) {
	if h.limiter != nil && !h.limiter.Allow(c.GetString("client_token")) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many token requests"})
		return
	}

	channel := c.Query("channelName")
	uidStr := c.Query("uid")
	if channel == "" || uidStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channelName and uid are required"})
		return
	}
	uid, err := strconv.ParseUint(uidStr, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uid must be a number"})
		return
	}

	if h.upstream != "" {
		h.proxy(c, channel, uidStr)
		return
	}

	signed, err := h.minter.Mint(channel, uint32(uid))
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("token mint failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": signed})
}

// proxy forwards the request upstream verbatim and relays status and
// body back, so clients see the issuer's own errors.
func (h *TokenHandler) proxy(c *gin.Context, channel, uid string) {
	q := url.Values{}
	q.Set("channelName", channel)
	q.Set("uid", uid)
	endpoint := h.upstream + "?" + q.Encode()

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, endpoint, nil)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
		return
	}
	resp, err := h.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("token upstream unreachable")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream read failed"})
		return
	}
	if !json.Valid(body) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream returned a non-json body"})
		return
	}
	c.Data(resp.StatusCode, "application/json", body)
}
