// Package idx generates the identifiers the session client hands to the
// identity backend: a stable device id and per-request correlation ids.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type ID string

const Zero ID = ""

// ErrInvalid reports a malformed id.
var ErrInvalid = errors.New("idx: invalid id")

var (
	once    sync.Once
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
)

// New returns a lexicographically sortable ULID for the current UTC time.
func New() ID {
	return NewAt(time.Now().UTC())
}

// NewAt generates an id at the provided time, mostly useful in tests.
func NewAt(t time.Time) ID {
	once.Do(func() { entropy = ulid.Monotonic(rand.Reader, 0) })

	mu.Lock()
	defer mu.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}

// NewDeviceID returns the id a device registers with on first start. It is
// the lower-case form of a ULID since the backend treats mobile uids as
// case-sensitive strings.
func NewDeviceID() string {
	return strings.ToLower(New().String())
}

// Parse validates a ULID string in either case.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}
	u, err := ulid.ParseStrict(strings.ToUpper(s))
	if err != nil {
		return Zero, ErrInvalid
	}
	return ID(u.String()), nil
}

func (id ID) IsZero() bool   { return id == Zero }
func (id ID) String() string { return string(id) }

// Time extracts the embedded timestamp, zero for invalid ids.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(id.String())
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}
