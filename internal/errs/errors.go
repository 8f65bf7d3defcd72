package errs

import "errors"

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")

	// ErrAccountNotFound is returned when an account id or role does not resolve.
	ErrAccountNotFound = errors.New("account_not_found")
	// ErrDuplicateAccountName is returned when an account name is already taken.
	ErrDuplicateAccountName = errors.New("duplicate_account_name")
	// ErrInvalidScenarioParams indicates missing, negative or non-numeric scenario inputs.
	ErrInvalidScenarioParams = errors.New("invalid_scenario_params")
	// ErrUnknownScenarioKind indicates a scenario kind with no recipe.
	ErrUnknownScenarioKind = errors.New("unknown_scenario_kind")
	// ErrUnbalancedGroup indicates debits and credits of a group differ.
	ErrUnbalancedGroup = errors.New("unbalanced_group")
	ErrNoEntries       = errors.New("no_entries")
	// ErrStorage wraps I/O failures of the underlying store. It is never retried.
	ErrStorage = errors.New("storage_error")
)
