package observability

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

const auditEventVersion = 1

// AuditInput carries the caller-supplied half of an audit record. Subjects
// are account identifiers; callers must never put secrets (codes, passwords,
// tokens) into Reason.
type AuditInput struct {
	EventName string
	Subject   string
	Action    string
	Outcome   string
	Reason    string
}

type AuditEvent struct {
	EventVersion int    `json:"event_version"`
	EventName    string `json:"event_name"`
	Subject      string `json:"subject"`
	ActorIP      string `json:"actor_ip"`
	Action       string `json:"action"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason"`
	RequestID    string `json:"request_id"`
	TS           string `json:"ts"`
}

func BuildAuditEvent(r *http.Request, in AuditInput) AuditEvent {
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		subject = "anonymous"
	}
	return AuditEvent{
		EventVersion: auditEventVersion,
		EventName:    in.EventName,
		Subject:      subject,
		ActorIP:      clientIP(r),
		Action:       in.Action,
		Outcome:      in.Outcome,
		Reason:       in.Reason,
		RequestID:    requestID(r),
		TS:           time.Now().UTC().Format(time.RFC3339),
	}
}

func (e AuditEvent) Validate() error {
	var errs []error
	if e.EventVersion <= 0 {
		errs = append(errs, errors.New("event_version must be > 0"))
	}
	if e.EventName == "" {
		errs = append(errs, errors.New("event_name is required"))
	}
	if e.Action == "" {
		errs = append(errs, errors.New("action is required"))
	}
	if e.Outcome == "" {
		errs = append(errs, errors.New("outcome is required"))
	}
	if e.TS == "" {
		errs = append(errs, errors.New("ts is required"))
	}
	return errors.Join(errs...)
}

// Audit writes one structured audit record through the default logger.
// Invalid events are still logged, flagged with audit_invalid.
func Audit(r *http.Request, in AuditInput) {
	ev := BuildAuditEvent(r, in)
	attrs := []any{
		"event_version", ev.EventVersion,
		"event_name", ev.EventName,
		"subject", ev.Subject,
		"actor_ip", ev.ActorIP,
		"action", ev.Action,
		"outcome", ev.Outcome,
		"reason", ev.Reason,
		"request_id", ev.RequestID,
		"ts", ev.TS,
	}
	if err := ev.Validate(); err != nil {
		attrs = append(attrs, "audit_invalid", err.Error())
	}
	slog.InfoContext(r.Context(), "audit", attrs...)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestID(r *http.Request) string {
	if id := chimiddleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(chimiddleware.RequestIDHeader)
}
