package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/iris/internal/domain"
)

const (
	rpcTimeout          = 5 * time.Second
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("/", handleNotFound)
}

func (s *Server) registerRPCHandlers() {
	s.Handle("status", s.rpcStatus)
	s.Handle("session.start", s.command("start", Controller.Start))
	s.Handle("session.stop", s.command("stop", Controller.Stop))
	s.Handle("interrupt", s.command("interrupt", Controller.Interrupt))
	s.Handle("suggestion.accept", s.command("suggestion.accept", Controller.AcceptSuggestion))
	s.Handle("suggestion.dismiss", s.command("suggestion.dismiss", Controller.DismissSuggestion))
	s.Handle("history", s.rpcHistory)
}

// StatusResponse is the payload of the status RPC.
type StatusResponse struct {
	Session  domain.Status `json:"session"`
	Version  string        `json:"version"`
	Clients  int           `json:"clients"`
	Seq      int64         `json:"seq"`
	UptimeMs int64         `json:"uptimeMs"`
}

func (s *Server) rpcStatus(rc *RequestContext) {
	if s.control == nil {
		rc.RespondError("unavailable", "no live session configured")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	st, err := s.control.Status(ctx)
	if err != nil {
		rc.RespondError("timeout", err.Error())
		return
	}
	rc.Respond(StatusResponse{
		Session:  st,
		Version:  s.version,
		Clients:  s.clients.Count(),
		Seq:      s.eventSeq.Load(),
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
	})
}

// command adapts a fire-and-forget controller method into an RPC. The
// response acknowledges the request; its effect arrives as events.
func (s *Server) command(name string, fn func(Controller)) RequestHandler {
	return func(rc *RequestContext) {
		if s.control == nil {
			rc.RespondError("unavailable", "no live session configured")
			return
		}
		fn(s.control)
		s.log.Debug().Str("command", name).Str("connId", rc.Client.ConnID).Msg("overlay command")
		rc.Respond(map[string]any{"accepted": name})
	}
}

type historyParams struct {
	Limit int    `json:"limit,omitempty"`
	Query string `json:"query,omitempty"`
}

func (s *Server) rpcHistory(rc *RequestContext) {
	if s.history == nil {
		rc.RespondError("unavailable", "no conversation log configured")
		return
	}
	var p historyParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	switch {
	case p.Limit <= 0:
		p.Limit = defaultHistoryLimit
	case p.Limit > maxHistoryLimit:
		p.Limit = maxHistoryLimit
	}

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	var (
		msgs []domain.Message
		err  error
	)
	if q := strings.TrimSpace(p.Query); q != "" {
		msgs, err = s.history.Search(ctx, q, p.Limit)
	} else {
		msgs, err = s.history.Recent(ctx, p.Limit)
	}
	if err != nil {
		rc.RespondError("store_error", err.Error())
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	rc.Respond(map[string]any{"messages": msgs})
}
