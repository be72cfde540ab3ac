// Build lifecycle events, published through docker/go-events to any
// number of registered sinks.
package buildcoordinator

import (
	"time"

	"github.com/docker/go-events"
)

// BuildStartedEvent is published when a build or metadata_of call begins
// sandbox provisioning (i.e. misses the binary-archive cache).
type BuildStartedEvent struct {
	Source SourceIdentity
	Phase  Phase
}

// BuildSucceededEvent is published when a build completes successfully.
type BuildSucceededEvent struct {
	Source   SourceIdentity
	Phase    Phase
	Duration time.Duration
}

// BuildFailedEvent is published when a build or metadata_of call fails,
// whether from a sandbox command or from provisioning itself.
type BuildFailedEvent struct {
	Source SourceIdentity
	Phase  Phase
	Err    error
}

// EventBroadcaster fans build lifecycle events out to any number of
// docker/go-events Sinks (log sinks, metrics sinks, external
// notification endpoints).
type EventBroadcaster struct {
	broadcaster *events.Broadcaster
}

// NewEventBroadcaster constructs a broadcaster over the given sinks.
func NewEventBroadcaster(sinks ...events.Sink) *EventBroadcaster {
	return &EventBroadcaster{broadcaster: events.NewBroadcaster(sinks...)}
}

// Publish writes evt to every registered sink.
func (e *EventBroadcaster) Publish(evt events.Event) error {
	if e == nil || e.broadcaster == nil {
		return nil
	}
	return e.broadcaster.Write(evt)
}

// Close shuts the broadcaster down, closing every sink.
func (e *EventBroadcaster) Close() error {
	if e == nil || e.broadcaster == nil {
		return nil
	}
	return e.broadcaster.Close()
}
