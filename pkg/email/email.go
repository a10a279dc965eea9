// Package email normalizes user email addresses.
package email

import (
	"net/mail"
	"strings"

	dErrors "github.com/cernops/keystone/pkg/domainerrors"
)

// MaxLength bounds a stored address.
const MaxLength = 255

// Normalize trims addr, checks that it is a bare address without a display
// name and lowercases the host part. The local part keeps its case. An empty
// input is returned unchanged; email is optional.
func Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", nil
	}
	if len(addr) > MaxLength {
		return "", dErrors.New(dErrors.CodeValidation, "Invalid input for field 'email': too long.")
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Name != "" || parsed.Address != addr {
		return "", dErrors.New(dErrors.CodeValidation, "Invalid input for field 'email': "+addr+" is not an email address.")
	}
	at := strings.LastIndexByte(addr, '@')
	return addr[:at] + "@" + strings.ToLower(addr[at+1:]), nil
}
