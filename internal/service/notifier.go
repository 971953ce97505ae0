package service

import (
	"context"
	"reflect"

	"feeportal/internal/models"
)

// StatusNotifier is told about every applied status transition.
type StatusNotifier interface {
	StatusChanged(ctx context.Context, view models.OrderWithStatus)
}

// Notifiers fans a transition out to each member in order.
type Notifiers []StatusNotifier

func (n Notifiers) StatusChanged(ctx context.Context, view models.OrderWithStatus) {
	for _, s := range n {
		s.StatusChanged(ctx, view)
	}
}

// NewNotifiers drops nil members, including typed nil pointers.
func NewNotifiers(list ...StatusNotifier) Notifiers {
	out := make(Notifiers, 0, len(list))
	for _, s := range list {
		if s == nil {
			continue
		}
		if v := reflect.ValueOf(s); v.Kind() == reflect.Ptr && v.IsNil() {
			continue
		}
		out = append(out, s)
	}
	return out
}
