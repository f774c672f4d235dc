package gateway

import (
	"errors"

	"go.uber.org/zap"

	"github.com/shubham-shewale/crypto-stream/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

func (s *Session) handleMessage(payload []byte) {
	if !s.limiter.Allow() {
		s.countInbound("rate_limited")
		s.replyError(&protocol.Error{Code: protocol.CodeRateLimited})
		return
	}

	req, err := protocol.DecodeRequest(payload)
	if err != nil {
		s.countInbound("invalid")
		s.logger.Debug("Malformed client message", zap.Error(err))
		s.replyError(err)
		return
	}

	switch req.Action {
	case protocol.ActionSubscribe:
		s.countInbound(req.Action)
		s.subscribe(models.CanonicalSymbols(req.Symbols))
	case protocol.ActionUnsubscribe:
		s.countInbound(req.Action)
		s.unsubscribe(models.CanonicalSymbols(req.Symbols))
	default:
		s.countInbound("unknown")
		s.replyError(&protocol.Error{Code: protocol.CodeUnknownAction})
	}
}

func (s *Session) subscribe(symbols []string) {
	for _, sym := range symbols {
		if _, ok := s.subscribed[sym]; ok {
			continue
		}
		s.registry.Add(sym, s)
		s.subscribed[sym] = struct{}{}
	}
	s.reply(protocol.NewAck(protocol.StatusSubscribed, s.subscribed))
}

func (s *Session) unsubscribe(symbols []string) {
	for _, sym := range symbols {
		if _, ok := s.subscribed[sym]; !ok {
			continue
		}
		s.registry.Remove(sym, s)
		delete(s.subscribed, sym)
	}
	s.reply(protocol.NewAck(protocol.StatusUnsubscribed, s.subscribed))
}

func (s *Session) replyError(err error) {
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		perr = &protocol.Error{Code: protocol.CodeInvalidMessage, Cause: err}
	}
	s.reply(perr.Reply())
}

func (s *Session) countInbound(action string) {
	if s.metrics != nil {
		s.metrics.InboundMessages.WithLabelValues(action).Inc()
	}
}
