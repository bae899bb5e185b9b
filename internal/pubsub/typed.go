package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/nfrund/chatterbox/internal/topicmgr"
)

// Event[T] binds a topic name to its payload type.
type Event[T any] struct {
	topic topicmgr.Topic
}

// NewEvent defines a typed event and registers it with the default topic
// registry. The payload field list is taken from T's json tags.
func NewEvent[T any](name, description string) Event[T] {
	var zero T
	t := reflect.TypeOf(zero)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	var fields []string
	typeName := ""
	if t != nil {
		typeName = t.Name()
		if t.Kind() == reflect.Struct {
			for i := 0; i < t.NumField(); i++ {
				tag := t.Field(i).Tag.Get("json")
				if tag == "" || tag == "-" {
					continue
				}
				fields = append(fields, strings.Split(tag, ",")[0])
			}
		}
	}

	module, _, _ := strings.Cut(name, ".")
	topic := topicmgr.Topic{
		Name:          name,
		Module:        module,
		Description:   description,
		PayloadType:   typeName,
		PayloadFields: fields,
	}
	topicmgr.Default().MustRegister(topic)
	return Event[T]{topic: topic}
}

// Name returns the topic name.
func (e Event[T]) Name() string {
	return e.topic.Name
}

// Topic returns the registered definition.
func (e Event[T]) Topic() topicmgr.Topic {
	return e.topic
}

// Publish sends a typed event.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], userID string, payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event.Name(), err)
	}
	return p.Publish(ctx, Message{
		Topic:   event.Name(),
		UserID:  userID,
		Payload: data,
	})
}

// Subscribe decodes every message on event's topic into T before calling fn.
func Subscribe[T any](ctx context.Context, s Subscriber, event Event[T], fn func(ctx context.Context, payload T) error) error {
	return s.Subscribe(ctx, event.Name(), func(ctx context.Context, msg Message) error {
		var payload T
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", event.Name(), err)
		}
		return fn(ctx, payload)
	})
}
