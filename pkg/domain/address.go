package domain

import (
	"strings"
	"unicode"

	dErrors "impactledger/pkg/domain-errors"
)

// Address is an opaque principal or module handle address. The ledger never
// interprets it beyond equality; wallets, service accounts and module handles
// all share this namespace.
//
// Invariant: non-empty, at most 128 printable non-space characters.
type Address string

// AnyAddress is a wildcard principal. Granting a role to AnyAddress opens that
// role to every caller (used to make timelock execution permissionless).
const AnyAddress Address = "*"

const maxAddressLen = 128

// ParseAddress validates an address from external input.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address cannot be empty")
	}
	if len(s) > maxAddressLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address too long")
	}
	for _, r := range s {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "address contains invalid characters")
		}
	}
	return Address(s), nil
}

func (a Address) String() string { return string(a) }

func (a Address) IsNil() bool { return a == "" }
