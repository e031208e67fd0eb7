// Package errors provides the stable numeric error taxonomy shared by the
// IPC core, the process table, and syscall dispatch.
//
// All errors support the standard errors.Is()/errors.As() functions for
// inspection.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is the closed, stable-numbered enumeration of recoverable
// syscall errors (spec §6) plus the fatal-fault reasons that classify a
// ProcessResult (spec §3, §7). Unknown is 0, matching the ABI's failure
// encoding (1, value) on success / (0, code) on failure.
type ErrorCode int

const (
	Unknown ErrorCode = iota
	EmptyListArgument
	WouldBlock
	IPCInvalidTopic
	IPCFilterExclusion
	IPCDeliveryNoTarget
	IPCDeliveryTargetFull
	IPCDeliveryTargetNack
	IPCUnsubscribed
	IPCReAcknowledge
	IPCPipeReserved
	IPCPipeSenderTerminated
	IPCPermissionError
	InvalidUTF8
	PtrUnaligned
	MmapInvalidProtectionFlags

	// Fatal-fault reasons never cross the syscall ABI as a return code;
	// they classify the ProcessResult of a process the kernel has killed.
	DivisionByZero
	PageFault
	UnhandledInterrupt
	InvalidSyscallNumber
	InvalidPointer
)

var codeNames = map[ErrorCode]string{
	Unknown:                    "unknown",
	EmptyListArgument:          "empty_list_argument",
	WouldBlock:                 "would_block",
	IPCInvalidTopic:            "ipc_invalid_topic",
	IPCFilterExclusion:         "ipc_filter_exclusion",
	IPCDeliveryNoTarget:        "ipc_delivery_no_target",
	IPCDeliveryTargetFull:      "ipc_delivery_target_full",
	IPCDeliveryTargetNack:      "ipc_delivery_target_nack",
	IPCUnsubscribed:            "ipc_unsubscribed",
	IPCReAcknowledge:           "ipc_re_acknowledge",
	IPCPipeReserved:            "ipc_pipe_reserved",
	IPCPipeSenderTerminated:    "ipc_pipe_sender_terminated",
	IPCPermissionError:         "ipc_permission_error",
	InvalidUTF8:                "invalid_utf8",
	PtrUnaligned:               "ptr_unaligned",
	MmapInvalidProtectionFlags: "mmap_invalid_protection_flags",
	DivisionByZero:             "division_by_zero",
	PageFault:                  "page_fault",
	UnhandledInterrupt:         "unhandled_interrupt",
	InvalidSyscallNumber:       "invalid_syscall_number",
	InvalidPointer:             "invalid_pointer",
}

// String returns the stable lower_snake_case name used in logs and in the
// parent process-result notification payload.
func (c ErrorCode) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "unknown"
}

// KernelError is the single error type returned across the kernel core.
// Op names the failing operation (a syscall name, "ipc_deliver", …),
// Detail carries free-form context, and Code is always one of the closed
// ErrorCode values above — callers branch on Code, never on Detail.
type KernelError struct {
	Op     string
	Code   ErrorCode
	Detail string
	Err    error
}

// Error implements error.
func (e *KernelError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Code.String()
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error, if any.
func (e *KernelError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is a *KernelError with the same Code.
func (e *KernelError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if t, ok := target.(*KernelError); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a KernelError with the given code.
func New(op string, code ErrorCode) *KernelError {
	return &KernelError{Op: op, Code: code}
}

// WithDetail returns a copy of e with Detail set.
func (e *KernelError) WithDetail(detail string) *KernelError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// Wrap wraps an underlying error with a kernel error code.
func Wrap(err error, op string, code ErrorCode) *KernelError {
	return &KernelError{Op: op, Code: code, Err: err}
}

// CodeOf extracts the ErrorCode from err, defaulting to Unknown if err is
// not a *KernelError.
func CodeOf(err error) ErrorCode {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Code
	}
	return Unknown
}

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
