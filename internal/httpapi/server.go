package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/ent0n29/slotbot/internal/config"
	"github.com/ent0n29/slotbot/internal/observability"
	"github.com/ent0n29/slotbot/internal/payout"
	"github.com/ent0n29/slotbot/internal/policy"
	"github.com/ent0n29/slotbot/internal/session"
)

// PayoutSubmitter hands cash-outs to the chat side. It must not block.
type PayoutSubmitter interface {
	Submit(req payout.Request) (string, error)
	Ready() bool
}

type Server struct {
	cfg      config.Config
	sessions *session.Store
	payouts  PayoutSubmitter
	metrics  *observability.Metrics
	static   http.Handler
}

func New(cfg config.Config, sessions *session.Store, payouts PayoutSubmitter, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		payouts:  payouts,
		metrics:  metrics,
		static:   newStaticHandler(cfg.StaticDir),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/api/session", s.handleGetSession)
	r.Post("/api/cashout", s.handleCashout)

	r.Get("/", s.static.ServeHTTP)
	r.Get("/*", s.static.ServeHTTP)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"sessions":        s.sessions.Count(),
		"session_policy":  s.sessions.Policy(),
		"payout_dispatch": s.payouts != nil && s.payouts.Ready(),
	})
}

// handleReady reports ready only once the payout consumer is running, so
// cash-out traffic is not routed here before the chat connection is up.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.payouts == nil || !s.payouts.Ready() {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "payout dispatcher is not running")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type sessionResponse struct {
	UserID string `json:"user_id"`
	Coins  int64  `json:"coins"`
	Used   bool   `json:"used"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("session"))
	if token == "" {
		s.metrics.ObserveSessionEvent("read_not_found")
		respondError(w, http.StatusNotFound, "session_not_found", "Session not found")
		return
	}

	sess, err := s.sessions.Get(token)
	switch {
	case errors.Is(err, session.ErrNotFound):
		s.metrics.ObserveSessionEvent("read_not_found")
		respondError(w, http.StatusNotFound, "session_not_found", "Session not found")
		return
	case errors.Is(err, session.ErrExpired):
		s.metrics.ObserveSessionEvent("read_expired")
		respondError(w, http.StatusGone, "session_expired", "Session expired")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	s.metrics.ObserveSessionEvent("read")
	respondJSON(w, http.StatusOK, sessionResponse{
		UserID: sess.OwnerID,
		Coins:  sess.Balance,
		Used:   sess.Consumed,
	})
}

type cashoutRequest struct {
	Session string `json:"session"`
	Coins   int64  `json:"coins"`
}

// handleCashout records the cash-out, then queues exactly one payout. A
// dispatch failure does not undo the recorded cash-out.
func (s *Server) handleCashout(w http.ResponseWriter, r *http.Request) {
	var req cashoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Session = strings.TrimSpace(req.Session)
	if req.Session == "" {
		respondError(w, http.StatusBadRequest, "missing_session", "session is required")
		return
	}
	if req.Coins < 0 {
		respondError(w, http.StatusBadRequest, "invalid_coins", "coins must not be negative")
		return
	}

	sess, err := s.sessions.AttachCashout(req.Session, req.Coins)
	switch {
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusBadRequest, "session_not_found", "Session not found")
		return
	case errors.Is(err, session.ErrExpired):
		respondError(w, http.StatusBadRequest, "session_expired", "Session expired")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	s.metrics.ObserveSessionEvent("cashout")

	hint := policy.RedactToken(sess.Token)
	if s.payouts == nil {
		log.Printf("httpapi: cashout session=%s user=%s coins=%d: no payout dispatcher", hint, sess.OwnerID, req.Coins)
		respondError(w, http.StatusInternalServerError, "dispatch_unavailable", "payout dispatch unavailable")
		return
	}
	id, err := s.payouts.Submit(payout.Request{
		OwnerID:   sess.OwnerID,
		Amount:    req.Coins,
		TokenHint: hint,
	})
	if err != nil {
		log.Printf("httpapi: cashout session=%s user=%s coins=%d: %v", hint, sess.OwnerID, req.Coins, err)
		respondError(w, http.StatusInternalServerError, "dispatch_unavailable", err.Error())
		return
	}
	log.Printf("httpapi: cashout session=%s user=%s coins=%d queued as %s", hint, sess.OwnerID, req.Coins, id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
