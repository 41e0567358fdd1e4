package middleware

import (
	"context"
	"net/http"
	"time"

	"cardhub/pkg/logger"

	"github.com/google/uuid"
)

// AuditEntry records one state-changing request.
type AuditEntry struct {
	ID         uuid.UUID `json:"id"`
	UserID     int64     `json:"userId,omitempty"`
	Action     string    `json:"action"`
	IPAddress  string    `json:"ipAddress"`
	UserAgent  string    `json:"userAgent"`
	RequestID  string    `json:"requestId,omitempty"`
	StatusCode int       `json:"statusCode"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AuditSink persists audit entries.
type AuditSink interface {
	Record(ctx context.Context, entry *AuditEntry) error
}

// LogAuditSink writes audit entries to a logger.
type LogAuditSink struct {
	logger logger.Logger
}

func NewLogAuditSink(log logger.Logger) *LogAuditSink {
	return &LogAuditSink{logger: log.With(map[string]interface{}{"channel": "audit"})}
}

func (s *LogAuditSink) Record(_ context.Context, e *AuditEntry) error {
	fields := map[string]interface{}{
		"audit_id":   e.ID.String(),
		"action":     e.Action,
		"ip":         e.IPAddress,
		"user_agent": e.UserAgent,
		"status":     e.StatusCode,
	}
	if e.UserID != 0 {
		fields["user_id"] = e.UserID
	}
	if e.RequestID != "" {
		fields["request_id"] = e.RequestID
	}
	s.logger.Info("Audit", fields)
	return nil
}

// AuditMiddleware provides request auditing.
type AuditMiddleware struct {
	sink   AuditSink
	logger logger.Logger
	now    func() time.Time
}

// NewAuditMiddleware creates a new AuditMiddleware.
func NewAuditMiddleware(sink AuditSink, log logger.Logger) *AuditMiddleware {
	if log == nil {
		log = logger.NewNop()
	}
	return &AuditMiddleware{sink: sink, logger: log, now: time.Now}
}

// Audit records mutating requests once the handler has answered. Reads are
// not audited.
func (m *AuditMiddleware) Audit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		entry := &AuditEntry{
			ID:         uuid.New(),
			Action:     r.Method + " " + r.URL.Path,
			IPAddress:  r.RemoteAddr,
			UserAgent:  r.UserAgent(),
			RequestID:  RequestIDFromContext(r.Context()),
			StatusCode: wrapped.statusCode,
			CreatedAt:  m.now().UTC(),
		}
		if id, ok := UserIDFromContext(r.Context()); ok {
			entry.UserID = id
		} else if info := requestInfoFrom(r.Context()); info != nil {
			entry.UserID = info.userID
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
		defer cancel()
		if err := m.sink.Record(ctx, entry); err != nil {
			m.logger.Error("Failed to create audit log", map[string]interface{}{
				"error":  err.Error(),
				"action": entry.Action,
			})
		}
	})
}
