package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for pincode hashes. A pincode has tiny entropy so the
// pepper, which never leaves the device, carries most of the protection.
const (
	memory      = 19 * 1024
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

var (
	ErrInvalidDigit = errors.New("pincode digits must be in 0-9")
	ErrEmptyPincode = errors.New("pincode is empty")
	ErrInvalidHash  = errors.New("invalid pincode hash format")
)

// PincodeString joins digits into the canonical string form ("1234").
func PincodeString(digits []int) (string, error) {
	if len(digits) == 0 {
		return "", ErrEmptyPincode
	}
	var b strings.Builder
	for _, d := range digits {
		if d < 0 || d > 9 {
			return "", ErrInvalidDigit
		}
		b.WriteString(strconv.Itoa(d))
	}
	return b.String(), nil
}

// HashPincode returns a PHC-format Argon2id hash of the digit sequence.
func HashPincode(digits []int, pepper string) (string, error) {
	code, err := PincodeString(digits)
	if err != nil {
		return "", err
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	sum := argon2.IDKey([]byte(code+pepper), salt, iterations, memory, parallelism, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// VerifyPincode reports whether digits hash to encodedHash. Malformed hashes
// and invalid digits never match.
func VerifyPincode(digits []int, encodedHash, pepper string) bool {
	code, err := PincodeString(digits)
	if err != nil {
		return false
	}

	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", salt, hash]
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return false
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}

	computed := argon2.IDKey([]byte(code+pepper), salt, iters, mem, par, uint32(len(expected))) // #nosec G115
	return subtle.ConstantTimeCompare(computed, expected) == 1
}
