package gateway

import (
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shubham-shewale/crypto-stream/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/crypto-stream/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/crypto-stream/pkg/config"
	"github.com/shubham-shewale/crypto-stream/pkg/metrics"
	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

// Options tune per-connection limits and keepalive.
type Options struct {
	SendBuffer        int
	MaxMessageSize    int64
	WriteWait         time.Duration
	PongWait          time.Duration
	PingPeriod        time.Duration
	MessagesPerSecond float64
	MessageBurst      int
}

func DefaultOptions() Options {
	return Options{
		SendBuffer:        256,
		MaxMessageSize:    512 * 1024,
		WriteWait:         5 * time.Second,
		PongWait:          60 * time.Second,
		PingPeriod:        50 * time.Second,
		MessagesPerSecond: 20,
		MessageBurst:      40,
	}
}

func OptionsFromConfig(c config.GatewayConfig) Options {
	return Options{
		SendBuffer:        c.SendBuffer,
		MaxMessageSize:    c.MaxMessageSize,
		WriteWait:         c.WriteWait,
		PongWait:          c.PongWait,
		PingPeriod:        c.PingPeriod,
		MessagesPerSecond: c.MessagesPerSecond,
		MessageBurst:      c.MessageBurst,
	}
}

// frame is one outbound websocket message.
type frame struct {
	op      ws.OpCode
	payload []byte
}

// Session is one authenticated websocket connection. readPump owns the
// subscribed set; writePump owns every write to conn.
type Session struct {
	id       string
	conn     net.Conn
	identity models.Identity
	registry *hub.Registry
	logger   *zap.Logger
	metrics  *metrics.GatewayMetrics
	opts     Options
	limiter  *rate.Limiter

	send      chan frame
	done      chan struct{}
	closeOnce sync.Once

	subscribed map[string]struct{}
}

func NewSession(conn net.Conn, identity models.Identity, registry *hub.Registry, logger *zap.Logger, m *metrics.GatewayMetrics, opts Options) *Session {
	limit := rate.Inf
	if opts.MessagesPerSecond > 0 {
		limit = rate.Limit(opts.MessagesPerSecond)
	}
	id := uuid.NewString()
	return &Session{
		id:         id,
		conn:       conn,
		identity:   identity,
		registry:   registry,
		logger:     logger.With(zap.String("session", id), zap.Int64("user_id", identity.UserID)),
		metrics:    m,
		opts:       opts,
		limiter:    rate.NewLimiter(limit, opts.MessageBurst),
		send:       make(chan frame, opts.SendBuffer),
		done:       make(chan struct{}),
		subscribed: make(map[string]struct{}),
	}
}

func (s *Session) Start() {
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}
	s.logger.Debug("Session opened", zap.String("tier", string(s.identity.Tier)))
	go s.writePump()
	go s.readPump()
}

func (s *Session) ID() string { return s.id }

// Done is closed once the session starts tearing down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Deliver enqueues payload without blocking. A full queue evicts the session.
func (s *Session) Deliver(payload []byte) error {
	select {
	case <-s.done:
		return hub.ErrSessionClosed
	default:
	}

	select {
	case s.send <- frame{op: ws.OpText, payload: payload}:
		return nil
	default:
		s.close()
		return hub.ErrSlowConsumer
	}
}

// reply queues a response to the client, waiting for room unless the session is closing.
func (s *Session) reply(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode reply", zap.Error(err))
		return
	}
	s.queue(frame{op: ws.OpText, payload: b})
}

func (s *Session) queue(f frame) {
	select {
	case s.send <- f:
	case <-s.done:
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// teardown runs exactly once when the receive loop exits, however it exits.
func (s *Session) teardown() {
	for sym := range s.subscribed {
		s.registry.Remove(sym, s)
	}
	s.subscribed = nil
	s.close()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
	s.logger.Debug("Session closed")
}

func (s *Session) readPump() {
	defer s.teardown()

	s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))

	for {
		header, err := ws.ReadHeader(s.conn)
		if err != nil {
			return
		}

		if header.Length > s.opts.MaxMessageSize {
			s.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			return
		}

		if !header.Fin {
			s.logger.Warn("Client sent fragmented message (not supported)")
			return
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(s.conn, payload); err != nil {
			return
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPing:
			s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
			s.queue(frame{op: ws.OpPong, payload: payload})
		case ws.OpPong:
			s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		case ws.OpText:
			s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
			s.handleMessage(payload)
		case ws.OpBinary:
			s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
			s.countInbound("invalid")
			s.replyError(&protocol.Error{Code: protocol.CodeInvalidMessage})
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case f := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := wsutil.WriteServerMessage(s.conn, f.op, f.payload); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := wsutil.WriteServerMessage(s.conn, ws.OpPing, nil); err != nil {
				return
			}

		case <-s.done:
			return
		}
	}
}
