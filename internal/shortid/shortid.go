// Package shortid translates between canonical UUIDs and the 22 character
// base57 form used in shareable URLs.
package shortid

import (
	"regexp"

	"go-playbooks/internal/apperr"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

const Length = 22

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

func ToShortID(id uuid.UUID) string {
	return shortuuid.DefaultEncoder.Encode(id)
}

func FromShortID(s string) (uuid.UUID, error) {
	if !IsShortID(s) {
		return uuid.Nil, apperr.Validation("invalid short id")
	}
	return shortuuid.DefaultEncoder.Decode(s)
}

// IsUUID reports whether s is a hyphenated UUID.
func IsUUID(s string) bool { return uuidPattern.MatchString(s) }

// IsShortID reports whether s is the canonical short form of some UUID.
func IsShortID(s string) bool {
	if len(s) != Length {
		return false
	}
	id, err := shortuuid.DefaultEncoder.Decode(s)
	if err != nil {
		return false
	}
	return shortuuid.DefaultEncoder.Encode(id) == s
}

// EnsureUUID accepts either form and returns the UUID.
func EnsureUUID(s string) (uuid.UUID, error) {
	switch {
	case IsUUID(s):
		return uuid.Parse(s)
	case IsShortID(s):
		return shortuuid.DefaultEncoder.Decode(s)
	default:
		return uuid.Nil, apperr.Validation("invalid id: " + s)
	}
}
