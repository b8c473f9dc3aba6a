package events

import (
	"context"

	"github.com/firesight-in/firesight/internal/domain/detection"
)

// NoopPublisher discards events. Used when no broker is configured.
type NoopPublisher struct{}

// NewNoopPublisher creates the publisher.
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

func (p *NoopPublisher) Publish(context.Context, []detection.FireDetection) error {
	return nil
}

var _ detection.EventPublisher = (*NoopPublisher)(nil)
