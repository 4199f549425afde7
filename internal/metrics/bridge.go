package metrics

import "github.com/solharvest/dlmm-harvester/internal/events"

// Bridge drains a Bus and reports domain events onto a Recorder. It holds
// no state of its own beyond the recorder reference, so it can be
// restarted freely if the bus subscription it was given is replaced.
type Bridge struct {
	rec Recorder
}

func NewBridge(rec Recorder) *Bridge {
	return &Bridge{rec: rec}
}

// Run drains ch until it closes, updating rec as events arrive. Intended
// to be started in its own goroutine against bus.Subscribe(n).
func (b *Bridge) Run(ch <-chan events.Event) {
	for ev := range ch {
		switch ev.Kind {
		case events.KindHarvestExecuted:
			b.rec.IncHarvest()
		case events.KindPositionClosed:
			b.rec.IncClose()
		case events.KindStreamReconnected:
			b.rec.IncReconnect()
		}
	}
}
