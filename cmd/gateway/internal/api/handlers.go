package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/shubham-shewale/crypto-stream/cmd/gateway/internal/auth"
	"github.com/shubham-shewale/crypto-stream/pkg/feed"
	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

const (
	identityKey = "identity"

	// bounds a shared latest-price query independently of any one caller
	latestTimeout = 5 * time.Second
)

// PriceReader is the read side of the price store.
type PriceReader interface {
	LatestPrices(ctx context.Context, symbols []string) ([]models.PriceUpdate, error)
	ListAssets(ctx context.Context) ([]models.Asset, error)
}

// Authenticator resolves a bearer token into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Identity, error)
}

// FeedRunner triggers an out-of-band producer run.
type FeedRunner interface {
	RunOnce(ctx context.Context) (feed.RunResult, error)
}

// SymbolCounter reports how many symbols have live subscribers.
type SymbolCounter interface {
	Symbols() []string
}

// Handler holds the dependencies for HTTP handlers.
type Handler struct {
	prices PriceReader
	auth   Authenticator
	runner FeedRunner
	hub    SymbolCounter
	logger *zap.Logger

	// coalesces identical concurrent latest-price queries
	latest singleflight.Group
}

// NewHandler creates a Handler. runner may be nil when no in-process feed runs.
func NewHandler(prices PriceReader, a Authenticator, runner FeedRunner, hub SymbolCounter, logger *zap.Logger) *Handler {
	return &Handler{prices: prices, auth: a, runner: runner, hub: hub, logger: logger}
}

// RequireIdentity rejects requests without a valid bearer token.
func (h *Handler) RequireIdentity(c *gin.Context) {
	identity, err := h.auth.Authenticate(c.Request.Context(), auth.TokenFromRequest(c.Request))
	if err != nil {
		kind := auth.KindInvalidToken
		var aerr *auth.Error
		if errors.As(err, &aerr) {
			kind = aerr.Kind
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": kind.String()})
		return
	}
	c.Set(identityKey, identity)
	c.Next()
}

// LatestPrices handles GET /api/crypto/prices/latest/
// Query params: symbols (optional, comma separated)
func (h *Handler) LatestPrices(c *gin.Context) {
	var symbols []string
	if raw := c.Query("symbols"); raw != "" {
		symbols = models.CanonicalSymbols(strings.Split(raw, ","))
	}

	// The query is shared by every caller joined on this key, so it must not
	// die with the first caller's request.
	v, err, _ := h.latest.Do(strings.Join(symbols, ","), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), latestTimeout)
		defer cancel()
		return h.prices.LatestPrices(ctx, symbols)
	})
	if err != nil {
		h.logger.Error("Failed to load latest prices", zap.Strings("symbols", symbols), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	updates := v.([]models.PriceUpdate)

	identity := c.MustGet(identityKey).(models.Identity)
	if identity.IsPremium() {
		if updates == nil {
			updates = []models.PriceUpdate{}
		}
		c.JSON(http.StatusOK, updates)
		return
	}

	basic := make([]models.BasicPrice, 0, len(updates))
	for _, u := range updates {
		basic = append(basic, u.Basic())
	}
	c.JSON(http.StatusOK, basic)
}

type symbolView struct {
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
	LogoURL string `json:"logo_url"`
}

// Symbols handles GET /api/crypto/symbols/
func (h *Handler) Symbols(c *gin.Context) {
	assets, err := h.prices.ListAssets(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list assets", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	out := make([]symbolView, 0, len(assets))
	for _, a := range assets {
		out = append(out, symbolView{Symbol: a.Symbol, Name: a.Name, LogoURL: a.LogoURL})
	}
	c.JSON(http.StatusOK, out)
}

// RunFeed handles POST /internal/feed/run
func (h *Handler) RunFeed(c *gin.Context) {
	res, err := h.runner.RunOnce(c.Request.Context())
	var upErr *feed.UpstreamFetchError
	switch {
	case errors.Is(err, feed.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "run_in_progress"})
	case errors.As(err, &upErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_error"})
	case err != nil:
		h.logger.Error("Manual feed run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	default:
		c.JSON(http.StatusOK, gin.H{
			"assets":           res.Assets,
			"published":        res.Published,
			"persist_failures": res.PersistFailures,
			"created":          res.Created,
		})
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"service":        "gateway",
		"active_symbols": len(h.hub.Symbols()),
	})
}
