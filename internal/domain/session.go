package domain

import "time"

// AuthState is the single authentication state of the process.
type AuthState int

const (
	NotAuthorized AuthState = iota
	UserAuth
	ServiceAuth
)

func (s AuthState) String() string {
	switch s {
	case UserAuth:
		return "user"
	case ServiceAuth:
		return "service"
	default:
		return "not_authorized"
	}
}

// TokenKind identifies which session a bearer token belongs to.
type TokenKind string

const (
	UserToken    TokenKind = "user"
	ServiceToken TokenKind = "service"
)

// LogoutTicket is a durable record of a token pending server-side invalidation.
// At most one ticket per kind exists at a time.
type LogoutTicket struct {
	Token     string
	Kind      TokenKind
	CreatedAt time.Time
}

// VerificationProcess correlates one in-flight identity verification.
// Target and RequestID are set by an external redirect handler.
type VerificationProcess struct {
	ProcessID string
	RequestID string
	Target    AuthMethod
}

// Complete reports whether the process carries everything verify needs.
func (p VerificationProcess) Complete() bool {
	return p.ProcessID != "" && p.RequestID != "" && p.Target != ""
}

// GateFlow keys the incorrect pincode attempt counter.
type GateFlow string

const (
	GateAuth   GateFlow = "auth"
	GateDiiaID GateFlow = "diiaId"
)

// GateFlows lists every gate flow with its own counter.
var GateFlows = []GateFlow{GateAuth, GateDiiaID}
