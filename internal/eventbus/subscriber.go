package eventbus

import "github.com/google/uuid"

// NewSubscriber generates a fresh subscriber with a random identity.
func NewSubscriber() *Subscriber {
	return &Subscriber{ID: uuid.New().String()}
}
