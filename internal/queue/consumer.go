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

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

// ControlHandler answers one control command.
type ControlHandler func(ctx context.Context, cmd Command) Reply

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
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

	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeLandmarks starts consuming landmark frames from the LANDMARKS stream.
// workerCount determines how many goroutines process messages concurrently;
// a single worker keeps frames of a run in publish order.
func (c *Consumer) ConsumeLandmarks(ctx context.Context, consumerName string, handler MessageHandler, workerCount int) error {
	if workerCount <= 0 {
		workerCount = 1
	}

	stream, err := c.js.Stream(ctx, LandmarksStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", LandmarksStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    1,
		FilterSubject: LandmarksSubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*64)

	// Start consumer fetch loop
	go func() {
		for {
			select {
			case <-ctx.Done():
				close(msgCh)
				return
			default:
			}

			batch, err := cons.Fetch(64, jetstream.FetchMaxWait(time.Second))
			if err != nil {
				if ctx.Err() != nil {
					close(msgCh)
					return
				}
				slog.Warn("fetch landmarks error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					close(msgCh)
					return
				}
			}
		}
	}()

	// Start workers
	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				// Frames are never redelivered: a stale frame is worse than a
				// missing one.
				if err := handler(ctx, msg); err != nil {
					slog.Debug("drop landmark frame", "worker", workerID, "error", err, "subject", msg.Subject())
				}
				_ = msg.Ack()
			}
		}(i)
	}

	slog.Info("landmark consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// ConsumeEvents starts consuming engine events (for API to broadcast via WebSocket).
func (c *Consumer) ConsumeEvents(ctx context.Context, consumerName string, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, EventsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", EventsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: EventsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				if err := handler(ctx, msg); err != nil {
					slog.Error("process event error", "error", err)
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("event consumer started", "consumer", consumerName)
	return nil
}

// ServeControl answers control requests on ControlSubject until ctx is done.
// Malformed requests get an invalid reply rather than a timeout.
func (c *Consumer) ServeControl(ctx context.Context, handler ControlHandler) error {
	sub, err := c.nc.Subscribe(ControlSubject, func(msg *nats.Msg) {
		var reply Reply
		cmd, err := ParseCommand(msg.Data)
		if err != nil {
			reply = Reply{Error: err.Error(), Code: CodeInvalid}
		} else {
			reply = handler(ctx, cmd)
		}

		data, err := json.Marshal(reply)
		if err != nil {
			slog.Error("marshal control reply", "action", cmd.Action, "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Error("respond to control request", "action", cmd.Action, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ControlSubject, err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()

	slog.Info("control subscriber started", "subject", ControlSubject)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
