package bastion

import "errors"

// Sentinel error kinds. MailboxFull,
// NoSuchPath and AskCanceled are returned synchronously to the caller and
// never escalated. ChildPanicked/ChildReturnedErr are caught by the child
// runtime frame and surfaced as a Faulted event; user code never observes
// them directly. RestartBudgetExceeded turns a supervisor into a faulted
// actor toward its own parent. Stopped is returned by any operation
// attempted on an actor that has already received its final Stop.
var (
	ErrMailboxFull           = errors.New("bastion: mailbox full")
	ErrNoSuchPath            = errors.New("bastion: no such path")
	ErrAskCanceled           = errors.New("bastion: ask canceled")
	ErrChildPanicked         = errors.New("bastion: child panicked")
	ErrChildReturnedErr      = errors.New("bastion: child returned error")
	ErrRestartBudgetExceeded = errors.New("bastion: restart budget exceeded")
	ErrStopped               = errors.New("bastion: actor stopped")
)

// FaultReason wraps the underlying cause of a Faulted event so a supervisor
// can distinguish a panic from a returned error while still satisfying
// errors.Is against the two sentinels above.
type FaultReason struct {
	Panicked bool
	Cause    error
}

func (f *FaultReason) Error() string {
	if f.Panicked {
		return ErrChildPanicked.Error() + ": " + errString(f.Cause)
	}
	return ErrChildReturnedErr.Error() + ": " + errString(f.Cause)
}

func (f *FaultReason) Unwrap() error {
	if f.Panicked {
		return ErrChildPanicked
	}
	return ErrChildReturnedErr
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
