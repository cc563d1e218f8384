// Package relay carries room frames between gateway instances over the
// event bus. Each instance fans out its own publishes locally and relays
// them; frames that come back with its own origin are ignored.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/babble-live/pkg/log"
	"github.com/weiawesome/babble-live/pkg/pubsub"
)

const reconnectDelay = 2 * time.Second

// Sink receives frames published on other instances.
type Sink interface {
	DeliverRemote(roomID string, frame []byte)
	CloseRemote(roomID string, frame []byte)
}

type Relay struct {
	bus        pubsub.PubSub
	instanceID string
	doneCh     chan struct{}
}

func New(bus pubsub.PubSub, instanceID string) *Relay {
	return &Relay{
		bus:        bus,
		instanceID: instanceID,
		doneCh:     make(chan struct{}),
	}
}

// Forward publishes a room frame for the other instances.
func (r *Relay) Forward(ctx context.Context, roomID string, frame []byte) error {
	return r.publish(ctx, pubsub.EventRoomFrame, roomID, frame)
}

// ForwardClose tells the other instances to tear the room down.
func (r *Relay) ForwardClose(ctx context.Context, roomID string, frame []byte) error {
	return r.publish(ctx, pubsub.EventRoomClosed, roomID, frame)
}

func (r *Relay) publish(ctx context.Context, eventType, roomID string, frame []byte) error {
	event, err := pubsub.NewEvent(eventType, roomID, frame)
	if err != nil {
		return fmt.Errorf("failed to build relay event: %w", err)
	}
	event.Origin = r.instanceID
	return r.bus.Publish(ctx, pubsub.RoomEventsChannel(roomID), event)
}

// Done returns a channel that is closed when Run exits.
func (r *Relay) Done() <-chan struct{} { return r.doneCh }

// Run consumes every room's events channel until ctx is done, resubscribing
// after errors.
func (r *Relay) Run(ctx context.Context, sink Sink) {
	defer close(r.doneCh)
	l := log.L().With().Str(log.FieldInstance, r.instanceID).Logger()

	for {
		err := r.consume(ctx, sink)
		if ctx.Err() != nil {
			return
		}
		l.Warn().Err(err).Msg("relay subscription ended, reconnecting in 2s")
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (r *Relay) consume(ctx context.Context, sink Sink) error {
	events, err := r.bus.SubscribePattern(ctx, pubsub.PatternRoomEvents)
	if err != nil {
		return err
	}
	defer r.bus.Unsubscribe(context.Background(), pubsub.PatternRoomEvents)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return fmt.Errorf("event stream closed")
			}
			r.handle(event, sink)
		}
	}
}

func (r *Relay) handle(event *pubsub.Event, sink Sink) {
	if event.Origin == r.instanceID || event.RoomID == "" {
		return
	}

	switch event.Type {
	case pubsub.EventRoomFrame:
		sink.DeliverRemote(event.RoomID, event.Payload)
	case pubsub.EventRoomClosed:
		sink.CloseRemote(event.RoomID, event.Payload)
	default:
		l := log.L()
		l.Debug().Str(log.FieldEventType, event.Type).Msg("relay: ignoring event")
	}
}
