package models

import (
	"encoding/json"
	"fmt"

	accessmodels "impactledger/internal/access/models"
	modulemodels "impactledger/internal/modules/models"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

type ActionKind string

const (
	ActionSetFeeSchedule      ActionKind = "SetFeeSchedule"
	ActionRegisterModule      ActionKind = "RegisterModule"
	ActionGrantRole           ActionKind = "GrantRole"
	ActionRevokeRole          ActionKind = "RevokeRole"
	ActionSetGovernanceParams ActionKind = "SetGovernanceParams"
)

const maxActions = 10

// Action is one call a proposal makes when executed. Only the fields of its
// Kind are set.
type Action struct {
	Kind ActionKind `json:"kind"`

	FeeBps       *int64         `json:"fee_bps,omitempty"`
	FeeRecipient domain.Address `json:"fee_recipient,omitempty"`

	ModuleName string               `json:"module_name,omitempty"`
	Handle     *modulemodels.Handle `json:"handle,omitempty"`

	Role   accessmodels.Role `json:"role,omitempty"`
	Member domain.Address    `json:"member,omitempty"`

	Params *Params `json:"params,omitempty"`
}

func SetFeeSchedule(feeBps int64, recipient domain.Address) Action {
	return Action{Kind: ActionSetFeeSchedule, FeeBps: &feeBps, FeeRecipient: recipient}
}

func RegisterModule(name string, handle modulemodels.Handle) Action {
	return Action{Kind: ActionRegisterModule, ModuleName: name, Handle: &handle}
}

func GrantRole(role accessmodels.Role, member domain.Address) Action {
	return Action{Kind: ActionGrantRole, Role: role, Member: member}
}

func RevokeRole(role accessmodels.Role, member domain.Address) Action {
	return Action{Kind: ActionRevokeRole, Role: role, Member: member}
}

func SetGovernanceParams(p Params) Action {
	return Action{Kind: ActionSetGovernanceParams, Params: &p}
}

func (a Action) Validate() error {
	switch a.Kind {
	case ActionSetFeeSchedule:
		if a.FeeBps == nil {
			return dErrors.New(dErrors.CodeValidation, "SetFeeSchedule needs fee_bps")
		}
		if err := domain.ValidateBps(*a.FeeBps); err != nil {
			return err
		}
		if a.FeeRecipient.IsNil() {
			return dErrors.New(dErrors.CodeValidation, "SetFeeSchedule needs fee_recipient")
		}
	case ActionRegisterModule:
		if err := modulemodels.ValidateName(a.ModuleName); err != nil {
			return err
		}
		if a.Handle == nil {
			return dErrors.New(dErrors.CodeValidation, "RegisterModule needs a handle")
		}
		return a.Handle.Validate()
	case ActionGrantRole, ActionRevokeRole:
		if _, err := accessmodels.ParseRole(string(a.Role)); err != nil {
			return err
		}
		if a.Member.IsNil() {
			return dErrors.Newf(dErrors.CodeValidation, "%s needs a member", a.Kind)
		}
	case ActionSetGovernanceParams:
		if a.Params == nil {
			return dErrors.New(dErrors.CodeValidation, "SetGovernanceParams needs params")
		}
		return a.Params.Validate()
	default:
		return dErrors.Newf(dErrors.CodeValidation, "unknown action kind %q", a.Kind)
	}
	return nil
}

// ValidateActions checks a proposal's action list.
func ValidateActions(actions []Action) error {
	if len(actions) == 0 {
		return dErrors.New(dErrors.CodeValidation, "a proposal needs at least one action")
	}
	if len(actions) > maxActions {
		return dErrors.Newf(dErrors.CodeValidation, "a proposal may carry at most %d actions", maxActions)
	}
	for i, a := range actions {
		if err := a.Validate(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeOf(err), fmt.Sprintf("action %d", i))
		}
	}
	return nil
}

// EncodeActions is the canonical byte form hashed into the timelock operation id.
func EncodeActions(actions []Action) ([]byte, error) {
	return json.Marshal(actions)
}

// Kinds lists the action kinds in order.
func Kinds(actions []Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a.Kind)
	}
	return out
}
