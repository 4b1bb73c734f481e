package corpus

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/kafka"
)

// EventCorpusUpdate is the Kafka event type of UpdateEvent.
const EventCorpusUpdate = "corpus.update"

// UpdateEvent announces that the posting source changed. Every replica that
// receives it drops its prepared corpus unless it already holds Version.
type UpdateEvent struct {
	Version   string    `json:"version,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleUpdates returns a Kafka handler that invalidates cache on
// corpus-update events. Events published by self were already applied
// locally and are skipped.
func HandleUpdates(cache *Cache, self string) kafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		if msg.Type != "" && msg.Type != EventCorpusUpdate {
			return nil
		}
		if self != "" && msg.Source == self {
			return nil
		}
		event, err := kafka.Decode[UpdateEvent](msg)
		if err != nil {
			return err
		}
		if cur := cache.Current(); cur != nil && event.Version != "" && cur.Version == event.Version {
			return nil
		}
		cache.Invalidate(fmt.Sprintf("%s from %s", event.Reason, msg.Source))
		return nil
	}
}

// Notifier publishes corpus-update events so other replicas invalidate too.
type Notifier struct {
	publisher kafka.Publisher
	key       string
}

// NewNotifier keys every event by key so updates stay ordered on one
// partition.
func NewNotifier(publisher kafka.Publisher, key string) *Notifier {
	return &Notifier{publisher: publisher, key: key}
}

func (n *Notifier) Notify(ctx context.Context, reason string) error {
	err := n.publisher.Publish(ctx, kafka.Event{
		Key:  n.key,
		Type: EventCorpusUpdate,
		Value: UpdateEvent{
			Reason:    reason,
			Timestamp: time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("notifying corpus update: %w", err)
	}
	return nil
}
