// Package pubsub publishes terminal pipeline results to a Cloud Pub/Sub
// topic so downstream consumers (library sync, analytics) can react to
// finished analyses.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// Publisher implements detect.Publisher over one Pub/Sub client. Topic
// handles are cached per topic name.
type Publisher struct {
	client *gcppubsub.Client
	logger *zap.Logger

	mu     sync.Mutex
	topics map[string]*gcppubsub.Topic
}

// New dials Pub/Sub with ambient credentials.
func New(ctx context.Context, projectID string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := gcppubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Publisher{
		client: client,
		logger: logger,
		topics: make(map[string]*gcppubsub.Topic),
	}, nil
}

// Publish marshals the payload as JSON and waits for the server-assigned
// message ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	result := p.topic(topic).Publish(ctx, &gcppubsub.Message{Data: body})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logger.Debug("result published",
		zap.String("topic", topic),
		zap.String("message_id", id),
	)
	return id, nil
}

func (p *Publisher) topic(name string) *gcppubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}

// Close flushes pending publishes and releases the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.mu.Unlock()
	return p.client.Close()
}
