package id

import (
	"strings"

	"github.com/google/uuid"
)

// Server returns a new mock server ID.
func Server() string {
	return uuid.NewString()
}

// Request returns a new request ID. IDs generated later sort after earlier
// ones.
func Request() string {
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return u.String()
}

// Short returns an eight character hex ID.
func Short() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// Valid reports whether s is a well-formed UUID.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
