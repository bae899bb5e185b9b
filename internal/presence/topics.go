package presence

import (
	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/nfrund/chatterbox/internal/pubsub"
)

// Event is the payload published on every presence transition.
type Event struct {
	UserID domain.UserID         `json:"userId"`
	Status domain.PresenceStatus `json:"status"`
}

// TopicUserChanged is published when a user gains a first live session or
// loses a last one.
var TopicUserChanged = pubsub.NewEvent[Event](
	"presence.user.changed",
	"Published when a user goes online or offline",
)
