package models

import (
	"strings"
	"time"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

// Canonical registry names.
const (
	NameNGORegistry      = "NGORegistry"
	NameFeeManager       = "FeeManager"
	NameDonationManager  = "DonationManager"
	NameMilestoneManager = "MilestoneManager"
	NameTimelock         = "Timelock"
	NameGovernor         = "Governor"
)

// Interface tags checked at resolve time. A module swapped under the same name
// must implement the same interface.
const (
	InterfaceNGORegistry      = "impactledger.NGORegistry"
	InterfaceFeeManager       = "impactledger.FeeManager"
	InterfaceDonationManager  = "impactledger.DonationManager"
	InterfaceMilestoneManager = "impactledger.MilestoneManager"
	InterfaceTimelock         = "impactledger.Timelock"
	InterfaceGovernor         = "impactledger.Governor"
)

const maxNameLength = 64

// Handle locates a module implementation. Address is the principal the module
// acts as when it calls other modules.
type Handle struct {
	Address   domain.Address `json:"address"`
	Interface string         `json:"interface"`
	Version   int            `json:"version"`
}

// Validate rejects null handles.
func (h Handle) Validate() error {
	if h.Address.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "module handle address is required")
	}
	if strings.TrimSpace(h.Interface) == "" {
		return dErrors.New(dErrors.CodeValidation, "module handle interface is required")
	}
	if h.Version < 1 {
		return dErrors.New(dErrors.CodeValidation, "module handle version must be at least 1")
	}
	return nil
}

// Entry is one row of the module directory.
//
// Invariants:
//   - Name is unique and non-empty
//   - Handle is never null
//   - Interface never changes for a Name once registered
type Entry struct {
	Name      string         `json:"name"`
	Handle    Handle         `json:"handle"`
	UpdatedAt time.Time      `json:"updated_at"`
	UpdatedBy domain.Address `json:"updated_by"`
}

// ValidateName rejects empty or oversized names.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return dErrors.New(dErrors.CodeValidation, "module name is required")
	}
	if len(name) > maxNameLength {
		return dErrors.New(dErrors.CodeValidation, "module name must be 64 characters or less")
	}
	return nil
}

// CanReplace checks that next may overwrite e under the same name.
func (e *Entry) CanReplace(next Handle) error {
	if e.Handle.Interface != next.Interface {
		return dErrors.Newf(dErrors.CodeDuplicateRegistration,
			"module %s is registered as %s, cannot rebind as %s", e.Name, e.Handle.Interface, next.Interface)
	}
	return nil
}
