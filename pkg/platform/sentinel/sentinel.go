package sentinel

import "errors"

// Facts stores report about rows. Services translate them into domain errors
// with a code; stores never pick a code themselves.
//
//   - ErrNotFound: no row for the key
//   - ErrConflict: a unique key (principal, vote, module name, resubmission) is taken
//   - ErrInvalidState: a conditional update matched no row in the expected state
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
)
