package escrow

import "fmt"

// ProgramError is a typed failure of the escrow program. Its code is what
// receipts and clients see; call sites wrap the sentinels below with
// github.com/pkg/errors to add context, and errors.Is still matches.
type ProgramError struct {
	Code uint32
	Name string
}

func (e *ProgramError) Error() string { return e.Name }

// ErrorCode returns the numeric code reported in receipts.
func (e *ProgramError) ErrorCode() uint32 { return e.Code }

var (
	ErrLayout               = &ProgramError{1, "account layout error"}
	ErrAlreadyInitialized   = &ProgramError{2, "account already initialized"}
	ErrCapacityExceeded     = &ProgramError{3, "asset slots full"}
	ErrAssetNotFound        = &ProgramError{4, "asset not found"}
	ErrAlreadyTaken         = &ProgramError{5, "escrow already taken"}
	ErrAccountMismatch      = &ProgramError{6, "account mismatch"}
	ErrMalformedInstruction = &ProgramError{7, "malformed instruction"}
	ErrUnauthorized         = &ProgramError{8, "unauthorized"}
	ErrInsufficientFunds    = &ProgramError{9, "insufficient funds"}
	ErrAmountOverflow       = &ProgramError{10, "amount overflow"}
	ErrDuplicateAsset       = &ProgramError{11, "duplicate asset"}
)

var errorsByCode = map[uint32]*ProgramError{}

func init() {
	for _, e := range []*ProgramError{
		ErrLayout, ErrAlreadyInitialized, ErrCapacityExceeded, ErrAssetNotFound,
		ErrAlreadyTaken, ErrAccountMismatch, ErrMalformedInstruction, ErrUnauthorized,
		ErrInsufficientFunds, ErrAmountOverflow, ErrDuplicateAsset,
	} {
		errorsByCode[e.Code] = e
	}
}

// ErrorFromCode maps a receipt error code back to its sentinel.
func ErrorFromCode(code uint32) (*ProgramError, error) {
	e, ok := errorsByCode[code]
	if !ok {
		return nil, fmt.Errorf("unknown escrow error code %d", code)
	}
	return e, nil
}
