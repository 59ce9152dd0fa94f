package queue

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

// WakeupQueue carries dispatch notifications from the API to the
// worker. They are an optimization: the worker polls on a cadence
// anyway, a wake-up just starts the next cycle immediately after a
// campaign is dispatched.
const WakeupQueue = "dispatch.wakeups"

// Publisher is the enqueue path's view of the bus.
type Publisher interface {
	DispatchQueued(campaignID int64) error
}

type wakeup struct {
	CampaignID int64 `json:"campaign_id"`
}

type Bus struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  zerolog.Logger
}

func Dial(url string, log zerolog.Logger) (*Bus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	_, err = ch.QueueDeclare(
		WakeupQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Bus{conn: conn, ch: ch, log: log}, nil
}

func (b *Bus) DispatchQueued(campaignID int64) error {
	body, err := json.Marshal(wakeup{CampaignID: campaignID})
	if err != nil {
		return err
	}
	return b.ch.Publish(
		"",
		WakeupQueue,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// Consume delivers wake-ups to fn until ctx is canceled or the channel
// closes. Malformed bodies are acked and dropped.
func (b *Bus) Consume(ctx context.Context, fn func(campaignID int64)) error {
	msgs, err := b.ch.Consume(
		WakeupQueue,
		"",
		false, // autoAck off for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			var wu wakeup
			if err := json.Unmarshal(d.Body, &wu); err != nil {
				b.log.Warn().Err(err).Msg("invalid wakeup payload, dropping")
				_ = d.Ack(false)
				continue
			}
			fn(wu.CampaignID)
			_ = d.Ack(false)
		}
	}
}

func (b *Bus) Close() {
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		_ = b.conn.Close()
	}
}

// NopPublisher is used when the broker is unreachable; dispatches then
// rely solely on the worker's poll cadence.
type NopPublisher struct{}

func (NopPublisher) DispatchQueued(int64) error { return nil }

var _ Publisher = (*Bus)(nil)
var _ Publisher = NopPublisher{}
