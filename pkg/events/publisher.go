package events

import (
	"chartsmith/pkg/logx"
	"chartsmith/pkg/metrics"
)

// Publisher is the interface the orchestrator and patch coordinator
// publish through.
type Publisher interface {
	// PublishPlanUpdate sends an identifier-only notification. Failures
	// are swallowed; publishing is not part of the correctness contract.
	PublishPlanUpdate(workspaceID, planID string)
}

// BusPublisher publishes plan updates to an in-process event bus.
type BusPublisher struct {
	bus    *Bus
	logger *logx.Logger
}

// NewBusPublisher creates a publisher over the given bus.
func NewBusPublisher(bus *Bus) *BusPublisher {
	return &BusPublisher{
		bus:    bus,
		logger: logx.NewLogger("events"),
	}
}

// PublishPlanUpdate implements Publisher. Panics from the underlying
// bus (a closed subscriber channel during teardown) are recovered and
// logged so a publish can never abort the caller's state transition.
func (p *BusPublisher) PublishPlanUpdate(workspaceID, planID string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("swallowed publish failure for plan %s: %v", planID, r)
			metrics.RecordPublishFailure()
		}
	}()
	p.bus.Publish(workspaceID, planID)
}

// NopPublisher discards all events. Used where no subscription channel
// is wired.
type NopPublisher struct{}

// PublishPlanUpdate implements Publisher.
func (NopPublisher) PublishPlanUpdate(_, _ string) {}
