// Package idptest runs an in-process identity backend for tests. It speaks
// the same endpoints as the real backend, mints HS256 session tokens and
// counts every call so tests can assert on network traffic.
package idptest

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/pkg/cryptox"
	"github.com/aussiebroadwan/authsession/pkg/jwtx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Route names used by Calls and FailNext.
const (
	RouteAuthURL        = "auth-url"
	RouteAuthURLv3      = "auth-url-v3"
	RouteGetToken       = "token"
	RouteRefresh        = "refresh"
	RouteTemporaryToken = "temporary-token"
	RouteProlong        = "prolong"
	RouteLogout         = "logout"
	RouteAuthMethods    = "auth-methods"
	RouteVerify         = "verify"
	RouteMethods        = "methods"
	RouteBanks          = "banks"
	RouteBankAuthURL    = "bank-auth-url"
	RouteServiceLogin   = "service-login"
	RouteServiceRefresh = "service-refresh"
	RouteServiceLogout  = "service-logout"
)

const defaultTokenLifetime = time.Hour

type process struct {
	method   domain.AuthMethod
	verified bool
}

// Server is a fake identity backend.
type Server struct {
	*httptest.Server

	signer *jwtx.HS256Signer
	otpKey *otp.Key

	mu        sync.Mutex
	calls     map[string]int
	failures  map[string][]int
	processes map[string]*process
	revoked   map[string]bool
	logouts   []string

	methods         []string
	skipMethods     bool
	methodsTemplate *domain.Template
	verifyTemplate  domain.Template
	refreshTemplate *domain.Template
	tokenLifetime   time.Duration
	refreshGate     chan struct{}
	banks           []map[string]any
}

// New starts a fake backend and registers its shutdown with t.Cleanup.
func New(t testing.TB) *Server {
	t.Helper()

	secret, err := cryptox.GenerateToken(32)
	if err != nil {
		t.Fatalf("idptest: secret: %v", err)
	}
	signer, err := jwtx.NewSignerHS256([]byte(secret))
	if err != nil {
		t.Fatalf("idptest: signer: %v", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "idptest",
		AccountName: "device",
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("idptest: totp key: %v", err)
	}

	s := &Server{
		signer:        signer,
		otpKey:        key,
		calls:         map[string]int{},
		failures:      map[string][]int{},
		processes:     map[string]*process{},
		revoked:       map[string]bool{},
		methods:       []string{"bankid"},
		tokenLifetime: defaultTokenLifetime,
		verifyTemplate: domain.Template{
			Type: "smallAlert",
			Data: domain.TemplateData{
				Title:      "Verified",
				MainButton: &domain.Button{Title: "Continue", Action: domain.ActionGetToken},
			},
		},
		banks: []map[string]any{
			{"id": "pb", "name": "PrivatBank", "logoUrl": "https://example.com/pb.png", "workable": true},
			{"id": "mono", "name": "monobank", "logoUrl": "https://example.com/mono.png", "workable": true},
		},
	}

	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// Calls returns how many times route was hit.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// TotalCalls returns the number of requests served on every route.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// FailNext makes the next request to route answer with status.
func (s *Server) FailNext(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], status)
}

// SetMethods sets the methods returned for every flow.
func (s *Server) SetMethods(methods ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods = methods
}

// SetSkipMethods makes the methods endpoint answer skipAuthMethods=true.
func (s *Server) SetSkipMethods(skip bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipMethods = skip
}

// SetMethodsTemplate attaches an interrupt to the methods response.
func (s *Server) SetMethodsTemplate(t *domain.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methodsTemplate = t
}

// SetVerifyTemplate replaces the interrupt returned by verify.
func (s *Server) SetVerifyTemplate(t domain.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifyTemplate = t
}

// SetRefreshTemplate attaches an interrupt to refresh responses.
func (s *Server) SetRefreshTemplate(t *domain.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTemplate = t
}

// SetTokenLifetime changes the lifetime of tokens minted from now on.
func (s *Server) SetTokenLifetime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenLifetime = d
}

// HoldRefresh blocks refresh requests until the returned release func runs.
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.refreshGate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// IssueToken mints a token of kind ("user" or "service") for the device.
func (s *Server) IssueToken(kind domain.TokenKind, mobileUID string) string {
	s.mu.Lock()
	ttl := s.tokenLifetime
	s.mu.Unlock()

	tok, err := s.signer.Sign(jwtx.NewClaims("subject-"+string(kind), mobileUID, string(kind), ttl, time.Now()))
	if err != nil {
		panic("idptest: sign: " + err.Error())
	}
	return tok
}

// NewProcess registers a fresh process and returns its id.
func (s *Server) NewProcess() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newProcessLocked()
}

// CompleteProcess marks processID as verified, as if the user finished a
// method out-of-band.
func (s *Server) CompleteProcess(processID string, method domain.AuthMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[processID]
	if !ok {
		p = &process{}
		s.processes[processID] = p
	}
	p.method = method
	p.verified = true
}

// ProcessVerified reports whether processID completed verification.
func (s *Server) ProcessVerified(processID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[processID]
	return ok && p.verified
}

// Revoked reports whether token was invalidated by a logout.
func (s *Server) Revoked(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[token]
}

// LogoutDevices returns the mobile_uid header of every accepted logout.
func (s *Server) LogoutDevices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logouts...)
}

// OTPCode returns the one-time code the smsOtp method accepts at t.
func (s *Server) OTPCode(t time.Time) string {
	code, err := totp.GenerateCode(s.otpKey.Secret(), t)
	if err != nil {
		panic("idptest: totp: " + err.Error())
	}
	return code
}

// hit counts a call and reports a queued failure for route, if any.
func (s *Server) hit(route string) (status int, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[route]++
	if queued := s.failures[route]; len(queued) > 0 {
		s.failures[route] = queued[1:]
		return queued[0], true
	}
	return 0, false
}
