// Package audit emits a structured event for every credential transition.
package audit

import "log/slog"

// Event identifies the credential transition being recorded.
type Event string

const (
	MagicLinkRequested Event = "magic_link_requested"
	MagicLinkVerified  Event = "magic_link_verified"
	MagicLinkRejected  Event = "magic_link_rejected"
	SessionCreated     Event = "session_created"
	SessionDeleted     Event = "session_deleted"
	PasskeyRegistered  Event = "passkey_registered"
	PasskeyLogin       Event = "passkey_login"
	PasskeyRejected    Event = "passkey_rejected"
	ClientRegistered   Event = "client_registered"
	CodeIssued         Event = "code_issued"
	CodeExchanged      Event = "code_exchanged"
	CodeRejected       Event = "code_rejected"
	ConsentDenied      Event = "consent_denied"
	TokenRotated       Event = "token_rotated"
	TokenReplay        Event = "token_rotation_replay"
	AccessDenied       Event = "access_denied"
	AllowlistRejected  Event = "allowlist_rejected"
)

// Logger records audit events through slog. It is emission-only: consumers
// that want durable audit trails attach their own slog handler.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger.With("component", "audit")}
}

func (l *Logger) Event(event Event, args ...any) {
	l.logger.Info(string(event), args...)
}
