package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/ritgame/apiserver/config"
	"github.com/rs/xid"
)

const defaultContentType = "application/octet-stream"

// RabbitMQClient publishes to and consumes from queues named after the
// channel, using the default exchange.
type RabbitMQClient struct {
	conn            *amqp091.Connection
	channel         *amqp091.Channel
	queueDurable    bool
	queueAutoDelete bool
}

// NewRabbitMQClient dials the broker and opens a single channel.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
	}

	return &RabbitMQClient{
		conn:            conn,
		channel:         ch,
		queueDurable:    cfg.QueueDurable,
		queueAutoDelete: cfg.QueueAutoDelete,
	}, nil
}

func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}
	if _, err := r.declareQueue(channel); err != nil {
		return "", err
	}

	msg := newPublishing(data, attrs, r.queueDurable)
	if err := r.channel.PublishWithContext(ctx, "", channel, false, false, msg); err != nil {
		return "", err
	}
	return msg.MessageId, nil
}

func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}
	if _, err := r.declareQueue(channel); err != nil {
		return err
	}

	consumerTag := fmt.Sprintf("rit-%s", xid.New().String())
	deliveries, err := r.channel.Consume(channel, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.channel.Cancel(consumerTag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			if err := handler(ctx, deliveryMessage(delivery)); err != nil {
				_ = delivery.Nack(false, true)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *RabbitMQClient) declareQueue(name string) (amqp091.Queue, error) {
	return r.channel.QueueDeclare(name, r.queueDurable, r.queueAutoDelete, false, false, nil)
}

// newPublishing moves the content type attribute into the AMQP property and
// the remaining attributes into headers.
func newPublishing(data []byte, attrs map[string]string, persistent bool) amqp091.Publishing {
	contentType := defaultContentType
	headers := amqp091.Table{}
	for key, value := range attrs {
		if key == AttrContentType {
			contentType = value
			continue
		}
		headers[key] = value
	}

	msg := amqp091.Publishing{
		ContentType: contentType,
		MessageId:   xid.New().String(),
		Timestamp:   time.Now(),
		Headers:     headers,
		Body:        data,
	}
	if persistent {
		msg.DeliveryMode = amqp091.Persistent
	}
	return msg
}

func deliveryMessage(d amqp091.Delivery) Message {
	attrs := headersToAttributes(d.Headers)
	if d.ContentType != "" {
		if attrs == nil {
			attrs = map[string]string{}
		}
		attrs[AttrContentType] = d.ContentType
	}
	return Message{ID: d.MessageId, Data: d.Body, Attributes: attrs}
}

func headersToAttributes(headers amqp091.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}
