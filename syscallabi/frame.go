package syscallabi

import "d7kernel/errors"

// Args is the fixed four-register argument frame every syscall entry
// receives (spec §4.2: "up to four argument registers"). Individual
// handlers interpret each register according to their own signature.
type Args struct {
	A0, A1, A2, A3 uint64
}

// Outcome is the syscall result before ABI encoding: either a success
// value or a recoverable error code (spec §4.2 "(success_flag,
// value_or_error_code)").
type Outcome struct {
	ok    bool
	value uint64
	code  errors.ErrorCode
}

// Ok builds a successful Outcome carrying value.
func Ok(value uint64) Outcome {
	return Outcome{ok: true, value: value}
}

// Err builds a failed Outcome carrying a recoverable error code.
func Err(code errors.ErrorCode) Outcome {
	return Outcome{ok: false, code: code}
}

// FromError maps a *errors.KernelError (or nil) to an Outcome, defaulting
// a successful nil error to Ok(0).
func FromError(err error) Outcome {
	if err == nil {
		return Ok(0)
	}
	return Err(errors.CodeOf(err))
}

// Encode renders the Outcome as the (success_flag, value_or_error_code)
// register pair the ABI specifies.
func (o Outcome) Encode() (success uint64, value uint64) {
	if o.ok {
		return 1, o.value
	}
	return 0, uint64(o.code)
}
