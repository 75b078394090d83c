// Package publisher forwards mediator notifications to Google Cloud Pub/Sub.
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/mcncl/mediator-abort/internal/errors"
	"github.com/mcncl/mediator-abort/internal/metrics"
	"google.golang.org/api/option"
)

// MessageTypeAttribute names the attribute carrying the notification type.
const MessageTypeAttribute = "message_type"

// Publisher defines the interface for publishing messages
type Publisher interface {
	Publish(ctx context.Context, data interface{}, attributes map[string]string) (string, error)
	Close() error
}

// Config identifies the topic to publish to.
type Config struct {
	ProjectID       string
	TopicID         string
	CredentialsFile string
}

// PubSubPublisher implements the Publisher interface for Google Cloud Pub/Sub
type PubSubPublisher struct {
	client  *pubsub.Client
	topic   *pubsub.Topic
	topicID string
}

// NewPubSubPublisher creates a new Google Cloud Pub/Sub publisher. The topic
// must already exist. Extra client options are appended after the
// credentials file option.
func NewPubSubPublisher(ctx context.Context, cfg Config, opts ...option.ClientOption) (*PubSubPublisher, error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" {
		return nil, errors.NewValidationError("pubsub project and topic are required")
	}

	if cfg.CredentialsFile != "" {
		opts = append([]option.ClientOption{option.WithCredentialsFile(cfg.CredentialsFile)}, opts...)
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, errors.NewConnectionError("failed to create pubsub client", err)
	}

	p, err := newPubSubPublisher(ctx, client, cfg.TopicID)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return p, nil
}

func newPubSubPublisher(ctx context.Context, client *pubsub.Client, topicID string) (*PubSubPublisher, error) {
	topic := client.Topic(topicID)

	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, errors.NewConnectionError("failed to check topic existence", err)
	}
	if !exists {
		return nil, errors.NewNotFoundError("topic "+topicID+" does not exist", nil)
	}

	return &PubSubPublisher{
		client:  client,
		topic:   topic,
		topicID: topicID,
	}, nil
}

// TopicID returns the topic messages are published to
func (p *PubSubPublisher) TopicID() string {
	return p.topicID
}

// Publish marshals data as JSON and publishes it, waiting for the server
// acknowledgement. Cancelling ctx abandons the wait.
func (p *PubSubPublisher) Publish(ctx context.Context, data interface{}, attributes map[string]string) (string, error) {
	start := time.Now()
	messageType := attributes[MessageTypeAttribute]

	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", errors.NewValidationError("failed to marshal data: " + err.Error())
	}

	msg := &pubsub.Message{
		Data:       jsonData,
		Attributes: attributes,
	}

	result := p.topic.Publish(ctx, msg)
	msgID, err := result.Get(ctx)
	if err != nil {
		err = classifyPublishError(err)
		metrics.RecordPublish(messageType, errors.Label(err), len(jsonData), time.Since(start))
		return "", err
	}

	metrics.RecordPublish(messageType, "success", len(jsonData), time.Since(start))
	return msgID, nil
}

func classifyPublishError(err error) error {
	switch {
	case errors.IsCanceled(err):
		return errors.NewCanceledError("publish abandoned", err)
	case errors.IsConnectionError(err):
		return errors.NewConnectionError("pubsub unavailable", err)
	default:
		return errors.NewPublishError("failed to publish message", err)
	}
}

// Close flushes pending messages and closes the client
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
