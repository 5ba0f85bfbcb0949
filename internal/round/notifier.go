package round

import (
	"context"
	"errors"
)

// Notifier delivers settlement reports. Delivery failures are logged by the
// settler and never undo payouts.
type Notifier interface {
	Notify(ctx context.Context, s *Settlement) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, s *Settlement) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, s *Settlement) error { return f(ctx, s) }

// NullNotifier discards reports.
type NullNotifier struct{}

// Notify implements Notifier.
func (NullNotifier) Notify(context.Context, *Settlement) error { return nil }

// MultiNotifier fans a report out to several notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier drops nil entries and collapses trivial cases.
func NewMultiNotifier(notifiers ...Notifier) Notifier {
	filtered := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			filtered = append(filtered, n)
		}
	}

	switch len(filtered) {
	case 0:
		return NullNotifier{}
	case 1:
		return filtered[0]
	default:
		return MultiNotifier{notifiers: filtered}
	}
}

// Notify delivers to every notifier and joins their errors.
func (m MultiNotifier) Notify(ctx context.Context, s *Settlement) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
