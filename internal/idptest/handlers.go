package idptest

import (
	"net/http"

	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/pkg/httpx"
	"github.com/aussiebroadwan/authsession/pkg/idx"
	"github.com/aussiebroadwan/authsession/pkg/jwtx"
	"github.com/pquerna/otp/totp"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	authn := httpx.AuthnMiddleware(s.verifyToken)

	handle := func(pattern, route string, h http.HandlerFunc, mode authMode) {
		var handler http.Handler = h
		switch mode {
		case authRequired:
			handler = authn(handler)
		case authOptional:
			handler = s.optionalAuthn(authn, handler)
		}
		mux.Handle(pattern, s.counted(route, handler))
	}

	handle("GET /v2/auth/{method}/auth-url", RouteAuthURL, s.handleAuthURL, authOptional)
	handle("GET /v3/auth/bankid/auth-url", RouteBankAuthURL, s.handleAuthURL, authOptional)
	handle("GET /v3/auth/{method}/auth-url", RouteAuthURLv3, s.handleAuthURL, authOptional)
	handle("GET /v3/auth/token", RouteGetToken, s.handleGetToken, authPublic)
	handle("POST /v2/auth/token/refresh", RouteRefresh, s.handleRefresh, authRequired)
	handle("GET /v1/auth/temporary/token", RouteTemporaryToken, s.handleTemporaryToken, authPublic)
	handle("GET /v1/auth/prolong/{$}", RouteProlong, s.handleProlong, authRequired)
	handle("POST /v2/auth/token/logout", RouteLogout, s.handleLogout, authRequired)
	handle("GET /v1/auth/methods", RouteAuthMethods, s.handleAuthMethods, authRequired)
	handle("GET /v1/auth/{method}/{requestId}/verify", RouteVerify, s.handleVerify, authOptional)
	handle("GET /v3/auth/{flow}/methods", RouteMethods, s.handleMethods, authOptional)
	handle("GET /v1/auth/banks", RouteBanks, s.handleBanks, authPublic)
	handle("GET /v1/auth/acquirer/branch/offer/{offerId}/token", RouteServiceLogin, s.handleServiceLogin, authPublic)
	handle("POST /v1/auth/acquirer/branch/offer/token/refresh", RouteServiceRefresh, s.handleServiceRefresh, authRequired)
	handle("POST /v1/auth/acquirer/branch/offer/token/logout", RouteServiceLogout, s.handleLogout, authRequired)
	return mux
}

type authMode int

const (
	authPublic authMode = iota
	authOptional
	authRequired
)

// optionalAuthn lets anonymous requests through (login happens before any
// session exists) but still rejects a bearer that is invalid or revoked.
func (s *Server) optionalAuthn(authn httpx.Middleware, next http.Handler) http.Handler {
	protected := authn(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := httpx.BearerToken(r); !ok {
			next.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})
}

// counted records the call and applies queued failures before h runs.
func (s *Server) counted(route string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status, fail := s.hit(route); fail {
			httpx.WriteError(w, status, "injected", http.StatusText(status))
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (s *Server) verifyToken(token string) (jwtx.Claims, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return jwtx.Claims{}, err
	}
	if s.Revoked(token) {
		return jwtx.Claims{}, jwtx.ErrExpired
	}
	return claims, nil
}

func (s *Server) newProcessLocked() string {
	id := idx.New().String()
	s.processes[id] = &process{}
	return id
}

func (s *Server) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	method := r.PathValue("method")
	if method == "" {
		method = "bankid"
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"authUrl": s.URL + "/redirect/" + method + "?processId=" + r.URL.Query().Get("processId"),
	})
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	processID := r.URL.Query().Get("processId")

	s.mu.Lock()
	p, ok := s.processes[processID]
	if ok && p.verified {
		delete(s.processes, processID)
	}
	s.mu.Unlock()

	if !ok || !p.verified {
		httpx.WriteError(w, http.StatusForbidden, "process_not_verified", "process is not verified")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"token": s.IssueToken(domain.UserToken, r.Header.Get("mobile_uid")),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	gate := s.refreshGate
	tmpl := s.refreshTemplate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	claims, _ := httpx.ClaimsFromContext(r.Context())
	resp := map[string]any{"token": s.IssueToken(domain.UserToken, claims.MobileUID)}
	if tmpl != nil {
		resp["template"] = tmpl
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTemporaryToken(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"token": s.IssueToken("temporary", ""),
	})
}

func (s *Server) handleProlong(w http.ResponseWriter, r *http.Request) {
	processID := r.URL.Query().Get("processId")
	if !s.ProcessVerified(processID) {
		httpx.WriteError(w, http.StatusForbidden, "process_not_verified", "process is not verified")
		return
	}

	claims, _ := httpx.ClaimsFromContext(r.Context())
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"token": s.IssueToken(domain.UserToken, claims.MobileUID),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := httpx.BearerToken(r)

	s.mu.Lock()
	s.revoked[token] = true
	s.logouts = append(s.logouts, r.Header.Get("mobile_uid"))
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleAuthMethods(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	methods := append([]string(nil), s.methods...)
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"authMethods": methods})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	method, err := domain.ParseAuthMethod(r.PathValue("method"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "unknown_method", err.Error())
		return
	}

	if method == domain.MethodSMSOTP && !totp.Validate(r.URL.Query().Get("otp"), s.otpKey.Secret()) {
		httpx.WriteError(w, http.StatusUnprocessableEntity, "invalid_otp", "one-time code is invalid")
		return
	}

	processID := r.URL.Query().Get("processId")

	s.mu.Lock()
	p, ok := s.processes[processID]
	if ok {
		p.method = method
		p.verified = true
	}
	tmpl := s.verifyTemplate
	s.mu.Unlock()

	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "process_not_found", "unknown process")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"template": tmpl})
}

func (s *Server) handleMethods(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	processID := r.URL.Query().Get("processId")
	if _, ok := s.processes[processID]; !ok {
		processID = s.newProcessLocked()
	}
	resp := map[string]any{
		"title":           "Choose a verification method",
		"processId":       processID,
		"authMethods":     append([]string(nil), s.methods...),
		"skipAuthMethods": s.skipMethods,
	}
	if s.methodsTemplate != nil {
		resp["template"] = s.methodsTemplate
	}
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBanks(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"banks": s.banks})
}

func (s *Server) handleServiceLogin(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"token": s.IssueToken(domain.ServiceToken, ""),
	})
}

func (s *Server) handleServiceRefresh(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"token": s.IssueToken(domain.ServiceToken, claims.MobileUID),
	})
}
