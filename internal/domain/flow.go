package domain

// Purpose drives UI copy and completion routing of a verification.
type Purpose string

const (
	PurposeLogin                   Purpose = "login"
	PurposeServiceLogin            Purpose = "serviceLogin"
	PurposeProlong                 Purpose = "prolong"
	PurposeDiiaIDAction            Purpose = "diiaId"
	PurposeIndependentVerification Purpose = "independentVerification"
)

// VerificationFlow is the immutable descriptor a caller supplies when
// starting a verification.
type VerificationFlow struct {
	FlowCode            string
	IsAuthorizationFlow bool
	Purpose             Purpose
}

// UserFlow is installed on the user session before a method is dispatched.
// OnComplete receives the action the verify interrupt resolved to.
type UserFlow struct {
	Purpose    Purpose
	OnComplete func(Action)
}

// DefaultUserFlow is the login flow with a no-op completion.
func DefaultUserFlow() UserFlow {
	return UserFlow{Purpose: PurposeLogin, OnComplete: func(Action) {}}
}

// Complete invokes the completion if one is set.
func (f UserFlow) Complete(a Action) {
	if f.OnComplete != nil {
		f.OnComplete(a)
	}
}
