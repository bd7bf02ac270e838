package persist

import (
	"errors"

	"github.com/justmebob123/autonomy-sub001/bus"
)

// Multi fans a message out to several persisters. Every persister sees
// every message even when an earlier one fails; the failures are joined
// into one error.
func Multi(persisters ...bus.Persister) bus.Persister {
	return multi(persisters)
}

type multi []bus.Persister

func (m multi) Persist(msg *bus.Message) error {
	var errs []error
	for _, p := range m {
		if err := p.Persist(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
