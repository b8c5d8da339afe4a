package notifications

import (
	"context"
	"encoding/json"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"
)

type publishFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// PubSubSink publishes notifications for the delivery workers that own e-mail and push.
type PubSubSink struct {
	publish publishFunc
}

func NewPubSubSink(publisher *pubsub.Publisher) (*PubSubSink, error) {
	if publisher == nil {
		return nil, errors.New("pubsub publisher required")
	}
	return &PubSubSink{publish: func(ctx context.Context, msg *pubsub.Message) (string, error) {
		return publisher.Publish(ctx, msg).Get(ctx)
	}}, nil
}

func (s *PubSubSink) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = s.publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_type": EventOrderStatusChanged,
			"event_id":   n.ID.String(),
			"order_ref":  n.OrderRef,
			"status":     string(n.To),
		},
	})
	return err
}
