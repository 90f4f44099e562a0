package audio

import (
	"errors"
	"fmt"
)

const BackendAuto = "auto"

var ErrNoBackend = errors.New("no audio backend available")

type backend struct {
	name string
	open func() (Context, error)
}

// ProbeFunc is told about every backend that failed to open during probing.
type ProbeFunc func(backend string, err error)

// NewContext probes the platform backends once, in preference order, and
// returns the first that opens. With preferred set to a backend name only
// that backend is tried.
func NewContext(preferred string, onFail ProbeFunc) (Context, error) {
	return probe(platformBackends(), preferred, onFail)
}

// Backends lists the backends compiled in for this platform.
func Backends() []string {
	var names []string
	for _, b := range platformBackends() {
		names = append(names, b.name)
	}
	return names
}

func probe(backends []backend, preferred string, onFail ProbeFunc) (Context, error) {
	if preferred != "" && preferred != BackendAuto {
		for _, b := range backends {
			if b.name == preferred {
				ctx, err := b.open()
				if err != nil {
					return nil, fmt.Errorf("%w: %w", ErrNoBackend, err)
				}
				return ctx, nil
			}
		}
		return nil, fmt.Errorf("%w: unknown backend %q", ErrNoBackend, preferred)
	}

	var errs []error
	for _, b := range backends {
		ctx, err := b.open()
		if err == nil {
			return ctx, nil
		}
		if onFail != nil {
			onFail(b.name, err)
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
}
