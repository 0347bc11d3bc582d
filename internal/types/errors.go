package types

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the kernel. Every Fault unwraps to exactly one of them.
var (
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrInvalidReference = errors.New("invalid reference")
	ErrConfig           = errors.New("config error")
	ErrInconsistent     = errors.New("inconsistent state")
)

// Fault is a tagged kernel failure carrying enough context to retry or abort.
type Fault struct {
	Kind   error  // one of the Err* sentinels
	Module string // component that raised it
	Tick   uint64
	ID     uint64 // offending formula/task/branch id, 0 if none
	Err    error  // optional detail
}

func (f *Fault) Error() string {
	msg := fmt.Sprintf("%s: %v", f.Module, f.Kind)
	if f.ID != 0 {
		msg += fmt.Sprintf(" (id=%d)", f.ID)
	}
	if f.Tick != 0 {
		msg += fmt.Sprintf(" at tick %d", f.Tick)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the detail to errors.Is / errors.As.
func (f *Fault) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

// CapacityFault reports a full fixed-size container.
func CapacityFault(module string, capacity int) *Fault {
	return &Fault{Kind: ErrCapacityExceeded, Module: module, Err: fmt.Errorf("limit %d reached", capacity)}
}

// ReferenceFault reports a dangling id.
func ReferenceFault(module string, id uint64) *Fault {
	return &Fault{Kind: ErrInvalidReference, Module: module, ID: id}
}

// InconsistentFault reports a violated internal invariant.
func InconsistentFault(module string, id uint64, err error) *Fault {
	return &Fault{Kind: ErrInconsistent, Module: module, ID: id, Err: err}
}

// ConfigFault reports a bad construction parameter.
func ConfigFault(field string, err error) *Fault {
	return &Fault{Kind: ErrConfig, Module: "config", Err: fmt.Errorf("%s: %w", field, err)}
}

// AsFault extracts a *Fault from err, stamping the tick if it is unset.
func AsFault(err error, tick uint64) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		if f.Tick == 0 {
			f.Tick = tick
		}
		return f
	}
	return &Fault{Kind: ErrInconsistent, Module: "kernel", Tick: tick, Err: err}
}
