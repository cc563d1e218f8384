package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/babble-live/pkg/log"
)

// DefaultKafkaTopic carries the events of every room.
const DefaultKafkaTopic = "live-events"

const headerOrigin = "origin"

// KafkaPubSub carries room channels over a single topic keyed by room id,
// so one room's events stay ordered on one partition. Every instance reads
// through its own consumer group and therefore sees all rooms.
type KafkaPubSub struct {
	producer *kafka.Producer
	cfg      KafkaConfig

	mu        sync.Mutex
	consumers map[string]*kafkaConsumer // subscription key -> consumer
	drained   chan struct{}
}

type kafkaConsumer struct {
	consumer *kafka.Consumer
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	if cfg.Topic == "" {
		cfg.Topic = DefaultKafkaTopic
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = 4
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"acks":               "all",
		"enable.idempotence": true,
		"linger.ms":          2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	k := &KafkaPubSub{
		producer:  p,
		cfg:       cfg,
		consumers: make(map[string]*kafkaConsumer),
		drained:   make(chan struct{}),
	}
	go k.watchProducer()

	if err := k.ensureTopic(); err != nil {
		l := log.L()
		l.Warn().Err(err).Str("topic", cfg.Topic).Msg("could not ensure kafka topic")
	}
	return k, nil
}

func (k *KafkaPubSub) ensureTopic() error {
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return err
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             k.cfg.Topic,
		NumPartitions:     k.cfg.Partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return err
	}
	for _, r := range results {
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return r.Error
		}
	}
	return nil
}

// watchProducer logs client-level errors. Delivery reports go to the
// per-message channels used by Publish.
func (k *KafkaPubSub) watchProducer() {
	defer close(k.drained)
	l := log.L()
	for e := range k.producer.Events() {
		if kerr, ok := e.(kafka.Error); ok {
			l.Error().Str("error", kerr.String()).Bool("fatal", kerr.IsFatal()).Msg("kafka producer error")
		}
	}
}

// Publish blocks until the broker acknowledged the event or ctx is done.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	roomID, ok := RoomIDFromChannel(channel)
	if !ok {
		return fmt.Errorf("invalid room channel: %s", channel)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	report := make(chan kafka.Event, 1)
	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.cfg.Topic, Partition: kafka.PartitionAny},
		Key:            []byte(roomID),
		Value:          data,
		Headers:        []kafka.Header{{Key: headerOrigin, Value: []byte(event.Origin)}},
	}, report)
	if err != nil {
		return fmt.Errorf("failed to produce event: %w", err)
	}

	select {
	case e := <-report:
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return fmt.Errorf("kafka delivery failed: %w", m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe consumes one room's events.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	roomID, ok := RoomIDFromChannel(channel)
	if !ok {
		return nil, fmt.Errorf("invalid room channel: %s", channel)
	}
	return k.subscribe(ctx, channel, roomID)
}

// SubscribePattern consumes every room. Only PatternRoomEvents is supported.
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	if pattern != PatternRoomEvents {
		return nil, fmt.Errorf("unsupported pattern: %s", pattern)
	}
	return k.subscribe(ctx, pattern, "")
}

func (k *KafkaPubSub) subscribe(ctx context.Context, key, roomID string) (<-chan *Event, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if old, ok := k.consumers[key]; ok {
		old.stop()
		delete(k.consumers, key)
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  k.cfg.Brokers,
		"group.id":           consumerGroupID(k.cfg.GroupID, k.cfg.InstanceID, key),
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := c.Subscribe(k.cfg.Topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", k.cfg.Topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	kc := &kafkaConsumer{consumer: c, cancel: cancel, done: make(chan struct{})}
	k.consumers[key] = kc

	out := make(chan *Event, eventBufferSize)
	go kc.run(subCtx, out, roomID)
	return out, nil
}

func (kc *kafkaConsumer) run(ctx context.Context, out chan<- *Event, roomID string) {
	defer close(kc.done)
	defer close(out)
	l := log.L()

	for ctx.Err() == nil {
		switch e := kc.consumer.Poll(200).(type) {
		case *kafka.Message:
			if roomID != "" && string(e.Key) != roomID {
				continue
			}
			event, err := decodeMessage(e)
			if err != nil {
				l.Warn().Err(err).Msg("kafka pubsub: dropping malformed event")
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			default:
				l.Warn().Str(log.FieldRoomID, event.RoomID).Msg("kafka pubsub: consumer lagging, event dropped")
			}
		case kafka.Error:
			l.Error().Str("error", e.String()).Bool("fatal", e.IsFatal()).Msg("kafka consumer error")
			if e.IsFatal() {
				return
			}
		}
	}
}

func (kc *kafkaConsumer) stop() {
	kc.cancel()
	<-kc.done
	kc.consumer.Close()
}

// decodeMessage fills RoomID and Origin from the key and header when the
// payload omits them.
func decodeMessage(m *kafka.Message) (*Event, error) {
	var event Event
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return nil, err
	}
	if event.RoomID == "" {
		event.RoomID = string(m.Key)
	}
	if event.RoomID == "" {
		return nil, errors.New("event without room")
	}
	if event.Origin == "" {
		for _, h := range m.Headers {
			if h.Key == headerOrigin {
				event.Origin = string(h.Value)
			}
		}
	}
	return &event, nil
}

func (k *KafkaPubSub) Unsubscribe(ctx context.Context, channel string) error {
	k.mu.Lock()
	kc, ok := k.consumers[channel]
	delete(k.consumers, channel)
	k.mu.Unlock()

	if ok {
		kc.stop()
	}
	return nil
}

// Close stops every consumer and flushes pending events.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	consumers := k.consumers
	k.consumers = make(map[string]*kafkaConsumer)
	k.mu.Unlock()

	for _, kc := range consumers {
		kc.stop()
	}

	if remaining := k.producer.Flush(5000); remaining > 0 {
		l := log.L()
		l.Warn().Int("remaining", remaining).Msg("kafka producer closed with undelivered events")
	}
	k.producer.Close()
	<-k.drained
	return nil
}

var groupIDUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// consumerGroupID gives each instance and subscription a private group so
// that no two consumers split the topic's partitions between them.
func consumerGroupID(base, instanceID, key string) string {
	if base == "" {
		base = "babble-live"
	}
	id := base
	if instanceID != "" {
		id += "-" + instanceID
	}
	if key != PatternRoomEvents {
		id += "-" + groupIDUnsafe.ReplaceAllString(key, "-")
	}
	return id
}
