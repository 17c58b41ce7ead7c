package domain

import "fmt"

// AuthMethod is one identity verification channel.
type AuthMethod string

const (
	MethodBankID     AuthMethod = "bankId"
	MethodNFC        AuthMethod = "nfc"
	MethodPhotoID    AuthMethod = "photoId"
	MethodMonobank   AuthMethod = "monobank"
	MethodPrivatbank AuthMethod = "privatbank"
	MethodSMSOTP     AuthMethod = "smsOtp"
)

// AllMethods lists every known method in presentation order.
var AllMethods = []AuthMethod{
	MethodBankID,
	MethodNFC,
	MethodPhotoID,
	MethodMonobank,
	MethodPrivatbank,
	MethodSMSOTP,
}

// ParseAuthMethod accepts both the method names and the lower-case path
// segments the backend uses ("bankid", "photoid").
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch s {
	case "bankId", "bankid":
		return MethodBankID, nil
	case "nfc":
		return MethodNFC, nil
	case "photoId", "photoid":
		return MethodPhotoID, nil
	case "monobank":
		return MethodMonobank, nil
	case "privatbank":
		return MethodPrivatbank, nil
	case "smsOtp", "smsotp", "otp":
		return MethodSMSOTP, nil
	default:
		return "", fmt.Errorf("unknown auth method %q", s)
	}
}

// PathSegment is the form used in endpoint paths.
func (m AuthMethod) PathSegment() string {
	switch m {
	case MethodBankID:
		return "bankid"
	case MethodPhotoID:
		return "photoid"
	case MethodSMSOTP:
		return "otp"
	default:
		return string(m)
	}
}

// UnmarshalText lets methods decode from either spelling.
func (m *AuthMethod) UnmarshalText(b []byte) error {
	parsed, err := ParseAuthMethod(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
