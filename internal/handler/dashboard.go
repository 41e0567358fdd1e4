package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cardhub/internal/dashboard"
	"cardhub/internal/middleware"
	"cardhub/internal/session"
	"cardhub/pkg/logger"

	"github.com/gorilla/websocket"
)

// DashboardHandler serves the customer dashboard, transaction history and
// the live statistics stream.
type DashboardHandler struct {
	service        *dashboard.Service
	sessions       *session.Manager
	upgrader       websocket.Upgrader
	streamInterval time.Duration
	logger         logger.Logger
}

// NewDashboardHandler creates a DashboardHandler. Websocket upgrades are
// accepted from same-origin pages and from allowedOrigins.
func NewDashboardHandler(service *dashboard.Service, sessions *session.Manager, streamInterval time.Duration, allowedOrigins []string, log logger.Logger) *DashboardHandler {
	if streamInterval <= 0 {
		streamInterval = 30 * time.Second
	}
	return &DashboardHandler{
		service:  service,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return streamOriginAllowed(allowedOrigins, r)
			},
		},
		streamInterval: streamInterval,
		logger:         log,
	}
}

// Dashboard returns the customer's landing screen.
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	view, err := h.service.CustomerDashboard(r.Context(), sess)
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Dashboard", err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Transactions returns one page of history (?page=, zero-based) with the
// all-time summary of the same scope. ?cardId= narrows both to one card.
func (h *DashboardHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	cardID := queryInt64(r, "cardId")
	page := queryInt(r, "page", 0)

	view, err := h.service.TransactionsView(r.Context(), sess, cardID, page)
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Transaction history", err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Summary returns the customer's all-time statistics.
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	view, err := h.service.Summary(r.Context(), sess)
	if err != nil {
		expireOnUnauthorized(r.Context(), h.sessions, sess, err, h.logger)
		respondServiceError(w, h.logger, "Summary", err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Stream pushes statistics over a websocket every stream interval.
// Customers receive their summary; administrators the admin dashboard.
func (h *DashboardHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client never sends anything we need; reading detects its close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Info("Stats stream connected", map[string]interface{}{"user_id": sess.User.ID})

	if err := h.sendStats(ctx, conn, sess); err != nil {
		h.logger.Warn("Stats stream closed", map[string]interface{}{"error": err.Error()})
		return
	}

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := h.sendStats(ctx, conn, sess); err != nil {
				h.logger.Warn("Stats stream closed", map[string]interface{}{"error": err.Error()})
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *DashboardHandler) sendStats(ctx context.Context, conn *websocket.Conn, sess *session.Session) error {
	msg := map[string]interface{}{
		"type":      "stats_update",
		"timestamp": time.Now().UTC(),
	}

	if sess.IsAdmin() {
		view, err := h.service.AdminDashboard(ctx, sess)
		if err != nil {
			return h.sendStreamError(conn, err)
		}
		msg["dashboard"] = view
	} else {
		view, err := h.service.Summary(ctx, sess)
		if err != nil {
			return h.sendStreamError(conn, err)
		}
		msg["summary"] = view.Summary
		msg["partial"] = view.Partial
	}

	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg)
}

// sendStreamError tells the client why the stream ends and returns err so
// the caller closes the connection.
func (h *DashboardHandler) sendStreamError(conn *websocket.Conn, err error) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = conn.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": "statistics unavailable",
	})
	return err
}

// streamOriginAllowed accepts non-browser clients (no Origin header),
// same-origin pages and the configured origins.
func streamOriginAllowed(allowed []string, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return middleware.OriginAllowed(allowed, origin)
}
