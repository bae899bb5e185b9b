// Package topicmgr keeps the catalogue of event-bus topics so publishers and
// subscribers share one definition per topic and operators can list them.
package topicmgr

import (
	"fmt"
	"time"
)

// Topic describes one event-bus topic.
type Topic struct {
	Name          string   `json:"name"`
	Module        string   `json:"module"`
	Description   string   `json:"description"`
	PayloadType   string   `json:"payload_type,omitempty"`
	PayloadFields []string `json:"payload_fields,omitempty"`
}

// Entry is a registered topic.
type Entry struct {
	Topic        Topic     `json:"topic"`
	RegisteredAt time.Time `json:"registered_at"`
}

// ErrorType classifies registration failures.
type ErrorType string

const (
	ErrorValidationFailed      ErrorType = "validation_failed"
	ErrorDuplicateRegistration ErrorType = "duplicate_registration"
)

// TopicError is returned by Register.
type TopicError struct {
	Type    ErrorType `json:"type"`
	Topic   string    `json:"topic"`
	Message string    `json:"message"`
}

func (e *TopicError) Error() string {
	return fmt.Sprintf("topic %q: %s: %s", e.Topic, e.Type, e.Message)
}
