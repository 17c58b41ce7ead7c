package domain

import "context"

// Action is a named server-driven action. The vocabulary is open: unknown
// values are carried through untouched.
type Action string

const (
	ActionOK                          Action = "ok"
	ActionConfirm                     Action = "confirm"
	ActionProlong                     Action = "prolong"
	ActionGetToken                    Action = "getToken"
	ActionPinCreation                 Action = "pinCreation"
	ActionInputPin                    Action = "inputPin"
	ActionCancel                      Action = "cancel"
	ActionSkip                        Action = "skip"
	ActionClose                       Action = "close"
	ActionLogout                      Action = "logout"
	ActionShowMethods                 Action = "showMethods"
	ActionAuthMethods                 Action = "authMethods"
	ActionGetMethods                  Action = "getMethods"
	ActionDiiaIDAuthMethods           Action = "diiaIdAuthMethods"
	ActionSignatureCreationMethods    Action = "signatureCreationMethods"
	ActionGetSignatureCreationMethods Action = "getSignatureCreationMethods"
)

// IsSuccess reports whether a verification completion with this action
// finishes the flow successfully.
func (a Action) IsSuccess() bool {
	switch a {
	case ActionOK, ActionConfirm, ActionProlong, ActionGetToken, ActionPinCreation, ActionInputPin:
		return true
	}
	return false
}

// ShowsMethods reports whether the action asks for the method list.
func (a Action) ShowsMethods() bool {
	switch a {
	case ActionShowMethods, ActionAuthMethods, ActionGetMethods, ActionDiiaIDAuthMethods,
		ActionSignatureCreationMethods, ActionGetSignatureCreationMethods:
		return true
	}
	return false
}

// IsCancel reports whether the action abandons the flow.
func (a Action) IsCancel() bool {
	return a == ActionCancel || a == ActionSkip
}

// Button is one choice offered by a template.
type Button struct {
	Title  string `json:"title,omitempty"`
	Icon   string `json:"icon,omitempty"`
	Action Action `json:"action"`
}

// TemplateData is the payload of an interrupt template.
type TemplateData struct {
	Icon              string  `json:"icon,omitempty"`
	Title             string  `json:"title,omitempty"`
	Description       string  `json:"description,omitempty"`
	MainButton        *Button `json:"mainButton,omitempty"`
	AlternativeButton *Button `json:"alternativeButton,omitempty"`
}

// Template is a server (or locally built) interrupt: a choice the client has
// to resolve before the logical operation completes.
type Template struct {
	Type       string       `json:"type"`
	IsClosable bool         `json:"isClosable"`
	Data       TemplateData `json:"data"`
}

// Actions lists the actions the template offers, main button first.
func (t Template) Actions() []Action {
	var out []Action
	if t.Data.MainButton != nil {
		out = append(out, t.Data.MainButton.Action)
	}
	if t.Data.AlternativeButton != nil {
		out = append(out, t.Data.AlternativeButton.Action)
	}
	return out
}

// MainAction returns the main button's action, or ActionClose when the
// template has no buttons.
func (t Template) MainAction() Action {
	if t.Data.MainButton != nil {
		return t.Data.MainButton.Action
	}
	return ActionClose
}

// InterruptHandler presents a template and blocks until it is resolved.
// Closing a closable template resolves to ActionClose.
type InterruptHandler interface {
	Resolve(ctx context.Context, t Template) (Action, error)
}

// InterruptFunc adapts a function to InterruptHandler.
type InterruptFunc func(ctx context.Context, t Template) (Action, error)

func (f InterruptFunc) Resolve(ctx context.Context, t Template) (Action, error) { return f(ctx, t) }

// AutoResolve resolves every template to its main action.
var AutoResolve = InterruptFunc(func(_ context.Context, t Template) (Action, error) {
	return t.MainAction(), nil
})
