package identityapi

import "github.com/aussiebroadwan/authsession/internal/domain"

// AuthURLResponse carries the external url a method redirects to.
type AuthURLResponse struct {
	AuthURL  string           `json:"authUrl"`
	Token    string           `json:"token,omitempty"`
	Template *domain.Template `json:"template,omitempty"`
}

// TokenResponse is returned by token exchange endpoints.
type TokenResponse struct {
	Token string `json:"token"`
}

// RefreshResponse is returned by refresh and prolong. Either field may be
// empty; a template must be resolved before the operation completes.
type RefreshResponse struct {
	Token    string           `json:"token,omitempty"`
	Template *domain.Template `json:"template,omitempty"`
}

// TemplateResponse wraps endpoints that only answer with an interrupt.
type TemplateResponse struct {
	Template domain.Template `json:"template"`
}

// VerificationMethodsResponse is the answer to a methods request for a flow.
type VerificationMethodsResponse struct {
	Title           string           `json:"title,omitempty"`
	ProcessID       string           `json:"processId,omitempty"`
	RawMethods      []string         `json:"authMethods,omitempty"`
	SkipAuthMethods bool             `json:"skipAuthMethods,omitempty"`
	Template        *domain.Template `json:"template,omitempty"`
}

// Methods returns the known methods in server order. Unknown names are dropped.
func (r VerificationMethodsResponse) Methods() []domain.AuthMethod {
	return parseMethods(r.RawMethods)
}

// AuthMethodsResponse lists the methods available for login.
type AuthMethodsResponse struct {
	RawMethods []string `json:"authMethods"`
}

// Methods returns the known methods in server order.
func (r AuthMethodsResponse) Methods() []domain.AuthMethod {
	return parseMethods(r.RawMethods)
}

// Bank is one bank offered by the bankId method.
type Bank struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	LogoURL  string `json:"logoUrl"`
	Workable bool   `json:"workable"`
}

// BankListResponse is the bank list payload.
type BankListResponse struct {
	Banks []Bank `json:"banks"`
}

func parseMethods(raw []string) []domain.AuthMethod {
	out := make([]domain.AuthMethod, 0, len(raw))
	for _, s := range raw {
		m, err := domain.ParseAuthMethod(s)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}
