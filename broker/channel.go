package broker

import (
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	herrors "github.com/nogards95TG/hermes-mq/errors"
)

// Mode selects a Channel's publish-confirmation behavior.
type Mode int

const (
	// Plain channels report a publish as complete as soon as it is
	// written to the wire; the broker sends no per-message acknowledgment.
	Plain Mode = iota
	// Confirm channels receive a per-publish ack/nack from the broker and
	// track outstanding delivery tags until they are resolved.
	Confirm
)

// Channel multiplexes a single AMQP channel over a shared Connection. It
// is single-owner: once closed or errored it is never reused.
type Channel struct {
	raw  *amqp.Channel
	mode Mode

	mu          sync.Mutex
	unconfirmed map[uint64]chan bool
	closed      bool

	confirms chan amqp.Confirmation
	returns  chan amqp.Return
	closeErr chan *amqp.Error

	assertedMu    sync.Mutex
	assertedExch  map[string]bool
	assertedQueue map[string]bool
}

func newChannel(raw *amqp.Channel, mode Mode) *Channel {
	c := &Channel{
		raw:           raw,
		mode:          mode,
		unconfirmed:   make(map[uint64]chan bool),
		assertedExch:  make(map[string]bool),
		assertedQueue: make(map[string]bool),
		closeErr:      make(chan *amqp.Error, 1),
	}
	raw.NotifyClose(c.closeErr)
	c.returns = make(chan amqp.Return, 64)
	raw.NotifyReturn(c.returns)
	if mode == Confirm {
		c.confirms = make(chan amqp.Confirmation, 64)
		raw.NotifyPublish(c.confirms)
		go c.watchConfirms()
	}
	go c.watchClose()
	return c
}

// Raw exposes the underlying driver channel for operations not wrapped
// here (Consume, ExchangeDeclare, QueueDeclare, QueueBind, ...).
func (c *Channel) Raw() *amqp.Channel {
	return c.raw
}

// Mode reports whether the channel is Plain or Confirm.
func (c *Channel) Mode() Mode {
	return c.mode
}

// AssertExchange declares ex at most once per channel lifetime.
func (c *Channel) AssertExchange(ex Exchange) error {
	c.assertedMu.Lock()
	defer c.assertedMu.Unlock()
	if c.assertedExch[ex.Name] {
		return nil
	}
	if err := c.raw.ExchangeDeclare(ex.Name, ex.Kind, ex.Durable, ex.AutoDelete, ex.Internal, false, amqp.Table(ex.Arguments)); err != nil {
		return herrors.Wrap(err, herrors.CodeChannelCreationFailed, "assert exchange")
	}
	c.assertedExch[ex.Name] = true
	return nil
}

// AssertQueue declares q at most once per channel lifetime, returning its
// (possibly server-generated) name.
func (c *Channel) AssertQueue(q Queue) (string, error) {
	c.assertedMu.Lock()
	defer c.assertedMu.Unlock()
	if q.Name != "" && c.assertedQueue[q.Name] {
		return q.Name, nil
	}
	dq, err := c.raw.QueueDeclare(q.Name, q.Durable, q.AutoDelete, q.Exclusive, false, amqp.Table(q.Arguments))
	if err != nil {
		return "", herrors.Wrap(err, herrors.CodeChannelCreationFailed, "assert queue")
	}
	c.assertedQueue[dq.Name] = true
	return dq.Name, nil
}

// AssertBinding binds a queue to an exchange under every routing key
// given (or the empty key, for fanout exchanges).
func (c *Channel) AssertBinding(b Binding) error {
	keys := b.RoutingKey
	if len(keys) == 0 {
		keys = []string{""}
	}
	for _, rk := range keys {
		if err := c.raw.QueueBind(b.Queue, rk, b.Exchange, false, amqp.Table(b.Arguments)); err != nil {
			return herrors.Wrap(err, herrors.CodeChannelCreationFailed, "assert binding")
		}
	}
	return nil
}

// PublishConfirm publishes msg and, on a Confirm-mode channel, blocks until
// the broker acks or nacks the delivery. On a Plain-mode channel it
// returns true as soon as the write completes.
func (c *Channel) PublishConfirm(exchange, routingKey string, mandatory bool, msg amqp.Publishing) (bool, error) {
	if c.mode != Confirm {
		return true, c.raw.Publish(exchange, routingKey, mandatory, false, msg)
	}

	wait := make(chan bool, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, herrors.New(herrors.CodeChannelClosed, "channel is closed")
	}
	seq := c.raw.GetNextPublishSeqNo()
	c.unconfirmed[seq] = wait
	c.mu.Unlock()

	if err := c.raw.Publish(exchange, routingKey, mandatory, false, msg); err != nil {
		c.mu.Lock()
		delete(c.unconfirmed, seq)
		c.mu.Unlock()
		return false, err
	}
	ok, open := <-wait
	if !open {
		return false, herrors.New(herrors.CodeChannelClosed, "channel closed before confirmation")
	}
	return ok, nil
}

// Returns exposes broker-returned (unroutable / mandatory-without-consumer)
// messages.
func (c *Channel) Returns() <-chan amqp.Return {
	return c.returns
}

// Close closes the underlying channel. Any outstanding unconfirmed
// publishes are reported as failed.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.raw.Close()
}

func (c *Channel) watchConfirms() {
	for conf := range c.confirms {
		c.mu.Lock()
		wait, ok := c.unconfirmed[conf.DeliveryTag]
		if ok {
			delete(c.unconfirmed, conf.DeliveryTag)
		}
		c.mu.Unlock()
		if ok {
			wait <- conf.Ack
			close(wait)
		}
	}
}

func (c *Channel) watchClose() {
	<-c.closeErr
	c.mu.Lock()
	c.closed = true
	pending := c.unconfirmed
	c.unconfirmed = make(map[uint64]chan bool)
	c.mu.Unlock()
	for _, wait := range pending {
		close(wait)
	}
}
