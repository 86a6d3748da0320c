package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/your-org/mindfocus/internal/models"
)

const publishTimeout = 5 * time.Second

type outMsg struct {
	event  *models.EngineEvent
	haptic bool
}

// outbox publishes a run's events in order on its own goroutine so a slow
// broker never stalls the engine. When the buffer is full the message is
// dropped.
type outbox struct {
	runID string
	pub   Publisher
	ch    chan outMsg
	done  chan struct{}
}

func newOutbox(runID string, pub Publisher, size int) *outbox {
	o := &outbox{
		runID: runID,
		pub:   pub,
		ch:    make(chan outMsg, size),
		done:  make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *outbox) event(ev *models.EngineEvent) { o.send(outMsg{event: ev}) }

func (o *outbox) haptic() { o.send(outMsg{haptic: true}) }

func (o *outbox) send(msg outMsg) {
	select {
	case o.ch <- msg:
	default:
		slog.Warn("outbox full, dropping message", "run_id", o.runID, "haptic", msg.haptic)
	}
}

// close publishes what is still buffered and stops the goroutine. The
// outbox must not be used afterwards.
func (o *outbox) close() {
	close(o.ch)
	<-o.done
}

func (o *outbox) loop() {
	defer close(o.done)
	for msg := range o.ch {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		var err error
		if msg.haptic {
			err = o.pub.PublishHaptic(ctx, o.runID)
		} else {
			err = o.pub.PublishEvent(ctx, o.runID, msg.event)
		}
		cancel()
		if err != nil {
			slog.Warn("publish run output", "run_id", o.runID, "haptic", msg.haptic, "error", err)
		}
	}
}
