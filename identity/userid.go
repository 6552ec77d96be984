// Package identity implements Matrix user ID and device ID parsing and
// validation per the Matrix specification's identifier grammar.
package identity

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	ErrEmptyUserID    = errors.New("identity: empty user id")
	ErrInvalidUserID  = errors.New("identity: invalid user id format")
	ErrInvalidLocal   = errors.New("identity: invalid localpart")
	ErrInvalidServer  = errors.New("identity: invalid server name")
	ErrEmptyDeviceID  = errors.New("identity: empty device id")
	ErrTooLong        = errors.New("identity: part exceeds maximum length")
)

const maxPartLen = 255

// UserID represents a Matrix user identifier: "@localpart:servername".
type UserID struct {
	local  string
	server string
}

// NewUserID creates a UserID from its parts.
func NewUserID(local, server string) (UserID, error) {
	if server == "" {
		return UserID{}, ErrInvalidServer
	}
	if len(local) > maxPartLen || len(server) > maxPartLen {
		return UserID{}, ErrTooLong
	}
	if local == "" || !validLocal(local) {
		return UserID{}, ErrInvalidLocal
	}
	if !validServer(server) {
		return UserID{}, ErrInvalidServer
	}
	return UserID{local: local, server: server}, nil
}

// ParseUserID parses a "@user:server" string into a UserID.
func ParseUserID(s string) (UserID, error) {
	if s == "" {
		return UserID{}, ErrEmptyUserID
	}
	if !strings.HasPrefix(s, "@") {
		return UserID{}, ErrInvalidUserID
	}
	s = s[1:]

	colonIdx := strings.IndexByte(s, ':')
	if colonIdx == -1 {
		return UserID{}, ErrInvalidUserID
	}
	local := s[:colonIdx]
	server := s[colonIdx+1:]

	return NewUserID(local, server)
}

// MustParseUserID parses a user ID string and panics on error.
func MustParseUserID(s string) UserID {
	u, err := ParseUserID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Local returns the localpart, without the leading "@".
func (u UserID) Local() string { return u.local }

// Server returns the server name.
func (u UserID) Server() string { return u.server }

// Equal reports whether two user IDs are identical.
func (u UserID) Equal(other UserID) bool {
	return u.local == other.local && u.server == other.server
}

// String returns the canonical "@local:server" form.
func (u UserID) String() string {
	if u.server == "" {
		return ""
	}
	var b strings.Builder
	b.WriteByte('@')
	b.WriteString(u.local)
	b.WriteByte(':')
	b.WriteString(u.server)
	return b.String()
}

// IsZero reports whether u is the zero value.
func (u UserID) IsZero() bool {
	return u.server == ""
}

// MarshalText implements encoding.TextMarshaler.
func (u UserID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UserID) UnmarshalText(data []byte) error {
	parsed, err := ParseUserID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

func validLocal(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if r == ':' || r == '/' || r == '\x00' {
			return false
		}
	}
	return true
}

func validServer(s string) bool {
	if s == "" || !utf8.ValidString(s) {
		return false
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		return true
	}
	for _, r := range s {
		if r == '/' || r == '\x00' {
			return false
		}
	}
	return true
}

// DeviceID identifies one of a user's devices. Device IDs are opaque,
// server-assigned strings with no further structure.
type DeviceID string

// Validate checks that the device ID is non-empty and reasonably bounded.
func (d DeviceID) Validate() error {
	if d == "" {
		return ErrEmptyDeviceID
	}
	if len(d) > maxPartLen {
		return ErrTooLong
	}
	return nil
}

func (d DeviceID) String() string { return string(d) }
