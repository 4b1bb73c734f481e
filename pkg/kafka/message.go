// Package kafka carries ranking events and corpus-update notifications over
// segmentio/kafka-go. Values are JSON; the event type and the publishing
// replica travel as headers so consumers can filter without decoding.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	headerType        = "event-type"
	headerSource      = "source"
	headerContentType = "content-type"
	contentTypeJSON   = "application/json"
)

// Event is what producers publish. Key picks the partition; Value is
// marshalled to JSON.
type Event struct {
	Key   string
	Type  string
	Value any
}

// Message is a consumed record with its headers unpacked.
type Message struct {
	Key       string
	Type      string
	Source    string
	Value     []byte
	Partition int
	Offset    int64
	Time      time.Time
}

// Handler processes one message. A returned error is logged and the
// message is still committed.
type Handler func(ctx context.Context, msg Message) error

// Publisher is implemented by Producer and by test recorders.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Decode unmarshals msg.Value into T.
func Decode[T any](msg Message) (T, error) {
	var out T
	if err := json.Unmarshal(msg.Value, &out); err != nil {
		return out, fmt.Errorf("decoding %s message at offset %d: %w", msg.Type, msg.Offset, err)
	}
	return out, nil
}

func encode(ev Event, source string) (kafka.Message, error) {
	value, err := json.Marshal(ev.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling %s event: %w", ev.Type, err)
	}
	headers := []kafka.Header{{Key: headerContentType, Value: []byte(contentTypeJSON)}}
	if ev.Type != "" {
		headers = append(headers, kafka.Header{Key: headerType, Value: []byte(ev.Type)})
	}
	if source != "" {
		headers = append(headers, kafka.Header{Key: headerSource, Value: []byte(source)})
	}
	return kafka.Message{Key: []byte(ev.Key), Value: value, Headers: headers}, nil
}

func decode(m kafka.Message) Message {
	msg := Message{
		Key:       string(m.Key),
		Value:     m.Value,
		Partition: m.Partition,
		Offset:    m.Offset,
		Time:      m.Time,
	}
	for _, h := range m.Headers {
		switch h.Key {
		case headerType:
			msg.Type = string(h.Value)
		case headerSource:
			msg.Source = string(h.Value)
		}
	}
	return msg
}
