package publish

import "github.com/crosscast-io/crosscast/pkg/models"

// Notifier receives task-transition events for push delivery. Implementations
// must never block: the scheduler calls this inline on its worker goroutines.
type Notifier interface {
	TaskTransition(evt models.TaskEvent)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) TaskTransition(models.TaskEvent) {}
