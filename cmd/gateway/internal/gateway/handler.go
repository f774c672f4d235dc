package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/shubham-shewale/crypto-stream/cmd/gateway/internal/auth"
	"github.com/shubham-shewale/crypto-stream/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/crypto-stream/pkg/metrics"
	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

// Authenticator resolves a bearer token into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Identity, error)
}

// Handler upgrades HTTP requests to price-stream sessions.
type Handler struct {
	auth     Authenticator
	registry *hub.Registry
	logger   *zap.Logger
	metrics  *metrics.GatewayMetrics
	opts     Options
}

func NewHandler(a Authenticator, registry *hub.Registry, logger *zap.Logger, m *metrics.GatewayMetrics, opts Options) *Handler {
	return &Handler{auth: a, registry: registry, logger: logger, metrics: m, opts: opts}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, authErr := h.auth.Authenticate(r.Context(), auth.TokenFromRequest(r))

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}

	if authErr != nil {
		h.reject(conn, authErr)
		return
	}

	NewSession(conn, identity, h.registry, h.logger, h.metrics, h.opts).Start()
}

// reject closes a freshly upgraded connection with the close code matching err.
func (h *Handler) reject(conn net.Conn, err error) {
	kind := auth.KindInvalidToken
	var aerr *auth.Error
	if errors.As(err, &aerr) {
		kind = aerr.Kind
	}
	if h.metrics != nil {
		h.metrics.AuthFailures.WithLabelValues(kind.String()).Inc()
	}
	h.logger.Debug("Rejected websocket handshake", zap.Stringer("reason", kind), zap.Error(err))

	conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
	body := ws.NewCloseFrameBody(ws.StatusCode(kind.CloseCode()), kind.String())
	if err := wsutil.WriteServerMessage(conn, ws.OpClose, body); err != nil {
		h.logger.Debug("Failed to send close frame", zap.Error(err))
	}
	conn.Close()
}
