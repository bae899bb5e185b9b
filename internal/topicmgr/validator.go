package topicmgr

import (
	"regexp"
	"strings"
)

// Topic names are lowercase dot-separated segments, e.g. presence.user.changed.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(\.[a-z][a-z0-9]*)*$`)

// Validate checks a topic definition before registration.
func Validate(t Topic) error {
	if !namePattern.MatchString(t.Name) {
		return &TopicError{Type: ErrorValidationFailed, Topic: t.Name, Message: "name must be lowercase dot-separated segments"}
	}
	if strings.TrimSpace(t.Description) == "" {
		return &TopicError{Type: ErrorValidationFailed, Topic: t.Name, Message: "description cannot be empty"}
	}
	return nil
}
