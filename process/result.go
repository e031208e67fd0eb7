package process

import (
	"fmt"

	"d7kernel/errors"
)

// ResultKind discriminates the two arms of ProcessResult (spec §3): a
// process either completes with a user-supplied exit code or fails with a
// classified reason.
type ResultKind int

const (
	ResultCompleted ResultKind = iota
	ResultFailed
)

// Result is the sum type ProcessResult { Completed(u64), Failed(reason) }.
// Reason is always one of the fatal-fault ErrorCodes: DivisionByZero,
// PageFault, UnhandledInterrupt, InvalidSyscallNumber, InvalidPointer.
type Result struct {
	Kind ResultKind

	// Set when Kind == ResultCompleted.
	Code uint64

	// Set when Kind == ResultFailed.
	Reason         errors.ErrorCode
	FaultAddr      uint64 // valid for PageFault
	FaultErrorCode uint64 // valid for PageFault
	IntVector      int    // valid for UnhandledInterrupt, -1 if absent
}

// Completed builds a successful ProcessResult.
func Completed(code uint64) Result {
	return Result{Kind: ResultCompleted, Code: code}
}

// Failed builds a fatal-fault ProcessResult for reasons that carry no
// extra payload (UnhandledInterrupt without a code, InvalidSyscallNumber,
// InvalidPointer, DivisionByZero).
func Failed(reason errors.ErrorCode) Result {
	return Result{Kind: ResultFailed, Reason: reason, IntVector: -1}
}

// FailedPageFault builds a Failed(PageFault) result carrying the faulting
// address and hardware error code.
func FailedPageFault(addr, errCode uint64) Result {
	return Result{Kind: ResultFailed, Reason: errors.PageFault, FaultAddr: addr, FaultErrorCode: errCode, IntVector: -1}
}

// FailedInterrupt builds a Failed(UnhandledInterrupt) result, optionally
// carrying the interrupt vector (-1 means "no code").
func FailedInterrupt(vector int) Result {
	return Result{Kind: ResultFailed, Reason: errors.UnhandledInterrupt, IntVector: vector}
}

// String renders the result the way it is published on the parent
// notification topic (spec §7): "(pid, ProcessResult)".
func (r Result) String() string {
	switch r.Kind {
	case ResultCompleted:
		return fmt.Sprintf("completed(%d)", r.Code)
	case ResultFailed:
		switch r.Reason {
		case errors.PageFault:
			return fmt.Sprintf("failed(page_fault addr=%#x code=%#x)", r.FaultAddr, r.FaultErrorCode)
		case errors.UnhandledInterrupt:
			if r.IntVector >= 0 {
				return fmt.Sprintf("failed(unhandled_interrupt vector=%d)", r.IntVector)
			}
			return "failed(unhandled_interrupt)"
		default:
			return fmt.Sprintf("failed(%s)", r.Reason)
		}
	default:
		return "unknown"
	}
}
