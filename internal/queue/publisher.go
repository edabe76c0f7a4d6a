package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultDialTimeout = 5 * time.Second
	redialBackoff      = 5 * time.Second
)

// ErrBrokerBackoff is returned while the publisher waits before redialing a
// broker that just refused or timed out.
var ErrBrokerBackoff = errors.New("broker unavailable, backing off")

// Publisher sends reservation events to the EventsQueue.  The connection is
// dialed lazily and re-dialed after a failure, so a broker outage never
// blocks startup.  Every step, including waiting for another publish and
// dialing, is bounded by the caller's context.  Publishing is best effort:
// callers log errors and carry on.
type Publisher struct {
	url string

	// sem serializes access to the connection; a buffered channel lets
	// waiters give up when their context ends.
	sem     chan struct{}
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time

	dial func(url string, timeout time.Duration) (*amqp.Connection, error)
	now  func() time.Time
}

func NewPublisher(url string) *Publisher {
	return &Publisher{
		url:  url,
		sem:  make(chan struct{}, 1),
		dial: dialBroker,
		now:  time.Now,
	}
}

func dialBroker(url string, timeout time.Duration) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

// Publish marshals ev and publishes it as a persistent message.
func (p *Publisher) Publish(ctx context.Context, ev ReservationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", ev.Type, ctx.Err())
	}
	defer func() { <-p.sem }()

	ch, err := p.channel(ctx)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",          // default exchange
		EventsQueue, // routing key = queue name
		false,       // mandatory
		false,       // immediate
		pub,
	); err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// channel returns an open channel, dialing when needed.  The caller holds
// sem.  The dial timeout never exceeds what is left of ctx.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if p.now().Before(p.retryAt) {
		return nil, ErrBrokerBackoff
	}
	timeout := defaultDialTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := dl.Sub(p.now()); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	conn, err := p.dial(p.url, timeout)
	if err != nil {
		p.retryAt = p.now().Add(redialBackoff)
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.retryAt = p.now().Add(redialBackoff)
		return nil, fmt.Errorf("open channel: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(EventsQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		p.retryAt = p.now().Add(redialBackoff)
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	p.conn, p.ch = conn, ch
	p.retryAt = time.Time{}
	slog.Debug("rabbitmq publisher connected", "queue", EventsQueue)
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()
	p.reset()
	return nil
}
