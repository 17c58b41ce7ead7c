/*
Package identityapi is the HTTP client for the identity backend.

It covers the user authorization endpoints (auth urls, token exchange,
refresh, prolong, logout, verification methods, verify), the service
entrance endpoints used by merchant initiated sessions, and the bank list
used by the bankId method.

The client is stateless with respect to sessions: every call that needs a
bearer takes the token explicitly, so the session layer decides which
credential is sent.

	client := identityapi.New("https://identity.example.com",
		identityapi.WithHeaders(map[string]string{"app-version": "1.0"}),
		identityapi.WithRateLimit(10, 5),
	)

	resp, err := client.VerificationMethods(ctx, token, flow, processID)
	if identityapi.IsUnauthorized(err) {
		// force logout of the owning session
	}

# Errors

Non-2xx responses are returned as *APIError. Transport failures (timeouts,
refused connections) are returned wrapped, unchanged.
*/
package identityapi
