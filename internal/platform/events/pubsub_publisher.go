// Package events publishes evaluation audit events to Pub/Sub.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/domain"
)

// EventTypeEvaluationRecorded is the eventType attribute attached to every evaluation message.
const EventTypeEvaluationRecorded = "risk.evaluation.recorded"

// PubSubEvaluationPublisher publishes completed risk evaluations to a Pub/Sub topic.
type PubSubEvaluationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubEvaluationPublisher constructs a Pub/Sub backed evaluation publisher.
func NewPubSubEvaluationPublisher(topic *pubsub.Topic) (*PubSubEvaluationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub evaluation publisher: topic is required")
	}
	return &PubSubEvaluationPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishEvaluation sends record and waits for the server acknowledgement.
func (p *PubSubEvaluationPublisher) PublishEvaluation(ctx context.Context, record domain.EvaluationRecord) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub evaluation publisher: not initialised")
	}
	if record.ReasonCodes == nil {
		record.ReasonCodes = []string{}
	}

	data, err := p.marshal(record)
	if err != nil {
		return fmt.Errorf("marshal evaluation record: %w", err)
	}

	attrs := map[string]string{"eventType": EventTypeEvaluationRecorded}
	setAttr(attrs, "merchantOrderId", record.MerchantOrderID)
	setAttr(attrs, "transactionId", record.TransactionID)
	setAttr(attrs, "decision", string(record.Decision))
	setAttr(attrs, "environment", record.Environment)
	if record.RiskScore != nil {
		attrs["riskScore"] = strconv.FormatFloat(*record.RiskScore, 'f', -1, 64)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish evaluation record: %w", err)
	}
	return nil
}

// Stop flushes pending messages and releases the topic's goroutines.
func (p *PubSubEvaluationPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

// CheckTopic reports whether the configured topic exists.
func (p *PubSubEvaluationPublisher) CheckTopic(ctx context.Context) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub evaluation publisher: not initialised")
	}
	ok, err := p.topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check topic %s: %w", p.topic.ID(), err)
	}
	if !ok {
		return fmt.Errorf("topic %s does not exist", p.topic.ID())
	}
	return nil
}
