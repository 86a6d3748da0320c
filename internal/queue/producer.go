package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	LandmarksStreamName  = "LANDMARKS"
	LandmarksSubjectBase = "landmarks"
	EventsStreamName     = "EVENTS"
	EventsSubjectBase    = "events"
	HapticsSubjectBase   = "haptics"
	ControlSubject       = "run.control"

	// HapticPulse is the vibration length devices are asked for.
	HapticPulse = 500 * time.Millisecond
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        LandmarksStreamName,
			Subjects:    []string{LandmarksSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      time.Minute,
			MaxMsgs:     500000,
			MaxBytes:    2 * 1024 * 1024 * 1024, // 2GB
			Storage:     jetstream.MemoryStorage,
			Discard:     jetstream.DiscardOld,
			Description: "Face landmark frames from devices",
		},
		{
			Name:        EventsStreamName,
			Subjects:    []string{EventsSubjectBase + ".>"},
			Retention:   jetstream.InterestPolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Description: "Focus engine state and alert events",
		},
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishLandmarks publishes one landmark frame for a run.
func (p *Producer) PublishLandmarks(ctx context.Context, runID string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal landmark frame: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", LandmarksSubjectBase, runID)
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publish landmarks: %w", err)
	}
	return nil
}

// PublishEvent publishes an engine event to NATS.
func (p *Producer) PublishEvent(ctx context.Context, runID string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", EventsSubjectBase, runID)
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// PublishHaptic asks the device of a run to vibrate. It is fire-and-forget
// over raw NATS: a missed pulse is not redelivered.
func (p *Producer) PublishHaptic(_ context.Context, runID string) error {
	payload, err := json.Marshal(HapticCommand{DurationMs: int(HapticPulse / time.Millisecond)})
	if err != nil {
		return fmt.Errorf("marshal haptic: %w", err)
	}
	return p.nc.Publish(fmt.Sprintf("%s.%s", HapticsSubjectBase, runID), payload)
}

// RequestControl sends a control command to the worker and waits for its
// reply. The worker subscribes to ControlSubject.
func (p *Producer) RequestControl(ctx context.Context, cmd Command) (*Reply, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	msg, err := p.nc.RequestWithContext(ctx, ControlSubject, data)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", cmd.Action, err)
	}

	var reply Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("parse reply: %w", err)
	}
	return &reply, nil
}

// QueueDepth returns the number of pending messages in the LANDMARKS stream.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, LandmarksStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
