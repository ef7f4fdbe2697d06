// Package pubsub implements the event Publisher and Subscriber:
// fire-and-forget event envelopes published to exchanges and consumed by
// pattern-matched handlers.
package pubsub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nogards95TG/hermes-mq/breaker"
	"github.com/nogards95TG/hermes-mq/broker"
	"github.com/nogards95TG/hermes-mq/buffer"
	"github.com/nogards95TG/hermes-mq/envelope"
	herrors "github.com/nogards95TG/hermes-mq/errors"
	"github.com/nogards95TG/hermes-mq/log"
	"github.com/nogards95TG/hermes-mq/observer"
	"github.com/nogards95TG/hermes-mq/retry"
)

// ReturnEvent reports a broker-returned (unroutable mandatory, or no
// ready consumer on immediate) message.
type ReturnEvent struct {
	ReplyCode  uint16
	ReplyText  string
	Exchange   string
	RoutingKey string
	Payload    []byte
}

// PublishOptions configures an individual Publish call.
type PublishOptions struct {
	Exchange   string
	RoutingKey string // defaults to eventName
	// Persistent sets the AMQP delivery mode. Defaults to true; pass
	// NonPersistent() to opt out.
	Persistent *bool
	Mandatory  bool
	Metadata   map[string]interface{}
}

// NonPersistent returns a *bool suitable for PublishOptions.Persistent that
// overrides the default persistent delivery mode.
func NonPersistent() *bool {
	f := false
	return &f
}

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	Confirms   bool
	Serializer envelope.Serializer
	Logger     log.Logger
	Retry      *retry.Policy
	// Breaker, when set, wraps every publish attempt so a broker known to
	// be down fails fast instead of burning the retry budget.
	Breaker *breaker.Breaker
	// Buffer, when set, holds publishes attempted while the broker
	// connection is down and flushes them once it reconnects.
	Buffer   *buffer.Buffer
	OnReturn func(ReturnEvent)
}

// Publisher publishes EventEnvelopes to one or more exchanges.
type Publisher struct {
	mgr    *broker.Manager
	opts   PublisherOptions
	serial envelope.Serializer
	log    log.Logger

	mu       sync.Mutex
	ch       *broker.Channel
	asserted map[string]broker.Exchange
}

// NewPublisher constructs a Publisher. The channel is acquired lazily on
// the first Publish call.
func NewPublisher(mgr *broker.Manager, opts PublisherOptions) *Publisher {
	if opts.Serializer == nil {
		opts.Serializer = envelope.Default
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	p := &Publisher{
		mgr:      mgr,
		opts:     opts,
		serial:   opts.Serializer,
		log:      opts.Logger,
		asserted: make(map[string]broker.Exchange),
	}
	if opts.Buffer != nil {
		mgr.OnLifecycle(bufferFlushSink{p: p})
	}
	return p
}

// bufferFlushSink flushes the publisher's buffer whenever the shared
// connection comes back up.
type bufferFlushSink struct {
	observer.Noop
	p *Publisher
}

func (s bufferFlushSink) OnConnection(ev observer.ConnectionEvent) {
	if ev.State == observer.StateConnected {
		go s.p.flushBuffer()
	}
}

// DeclareExchange registers an exchange to be asserted at most once the
// next time it is published to.
func (p *Publisher) DeclareExchange(ex broker.Exchange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asserted[ex.Name] = ex
}

// Publish encodes and publishes an EventEnvelope.
func (p *Publisher) Publish(ctx context.Context, eventName string, data interface{}, opts PublishOptions) error {
	routingKey := opts.RoutingKey
	if routingKey == "" {
		routingKey = eventName
	}
	persistent := true
	if opts.Persistent != nil {
		persistent = *opts.Persistent
	}

	ev := envelope.EventEnvelope{EventName: eventName, Data: data, Timestamp: time.Now().UnixMilli(), Metadata: opts.Metadata}
	body, err := p.serial.Encode(ev)
	if err != nil {
		return herrors.Wrap(err, herrors.CodeValidationConfig, "encode event")
	}

	ch, err := p.ensureChannel(ctx)
	if err != nil {
		if p.opts.Buffer != nil {
			return p.bufferPublish(opts.Exchange, routingKey, opts.Mandatory, persistent, body)
		}
		return err
	}
	if err := p.assertExchange(ch, opts.Exchange); err != nil {
		return err
	}

	publish := func() error {
		return p.doPublish(ch, opts.Exchange, routingKey, opts.Mandatory, persistent, body)
	}
	if p.opts.Retry != nil {
		publish = func() error {
			return p.opts.Retry.Execute(func() error {
				return p.doPublish(ch, opts.Exchange, routingKey, opts.Mandatory, persistent, body)
			})
		}
	}
	if p.opts.Breaker != nil {
		_, err := p.opts.Breaker.Execute(func() (interface{}, error) {
			return nil, publish()
		})
		return err
	}
	return publish()
}

func (p *Publisher) doPublish(ch *broker.Channel, exchange, routingKey string, mandatory, persistent bool, body []byte) error {
	deliveryMode := amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}
	ok, err := ch.PublishConfirm(exchange, routingKey, mandatory, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: deliveryMode,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return herrors.Wrap(err, herrors.CodePublishNacked, "publish event")
	}
	if !ok {
		return herrors.New(herrors.CodePublishNacked, "publish confirmation nacked")
	}
	return nil
}

// bufferPublish holds a publish attempted while the broker channel is
// unavailable, blocking until it is flushed, expires, or is cleared.
func (p *Publisher) bufferPublish(exchange, routingKey string, mandatory, persistent bool, body []byte) error {
	entry, err := p.opts.Buffer.Add(body, exchange, routingKey, mandatory, persistent)
	if err != nil {
		return err
	}
	return entry.Wait()
}

// flushBuffer republishes every entry buffered while the connection was
// down, resolving or rejecting each against the outcome.
func (p *Publisher) flushBuffer() {
	for _, entry := range p.opts.Buffer.Flush() {
		ch, err := p.ensureChannel(context.Background())
		if err != nil {
			p.opts.Buffer.Reject(entry, err)
			continue
		}
		if err := p.assertExchange(ch, entry.Exchange); err != nil {
			p.opts.Buffer.Reject(entry, err)
			continue
		}
		if err := p.doPublish(ch, entry.Exchange, entry.RoutingKey, entry.Mandatory, entry.Persistent, entry.Payload); err != nil {
			p.opts.Buffer.Reject(entry, err)
			continue
		}
		p.opts.Buffer.Resolve(entry)
	}
}

// PublishToMany publishes the same event to several exchanges
// concurrently.
func (p *Publisher) PublishToMany(ctx context.Context, exchanges []string, eventName string, data interface{}, opts PublishOptions) []error {
	errs := make([]error, len(exchanges))
	var wg sync.WaitGroup
	for i, ex := range exchanges {
		wg.Add(1)
		go func(i int, ex string) {
			defer wg.Done()
			o := opts
			o.Exchange = ex
			errs[i] = p.Publish(ctx, eventName, data, o)
		}(i, ex)
	}
	wg.Wait()
	return errs
}

// Close closes the underlying channel without draining it first;
// publishes still awaiting a confirm on it are reported as failed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	ch := p.ch
	p.ch = nil
	p.mu.Unlock()
	if ch == nil {
		return nil
	}
	return ch.Close()
}

func (p *Publisher) ensureChannel(ctx context.Context) (*broker.Channel, error) {
	p.mu.Lock()
	if p.ch != nil {
		ch := p.ch
		p.mu.Unlock()
		return ch, nil
	}
	p.mu.Unlock()

	mode := broker.Plain
	if p.opts.Confirms {
		mode = broker.Confirm
	}
	ch, err := p.mgr.GetChannel(ctx, mode)
	if err != nil {
		return nil, herrors.Wrap(err, herrors.CodeChannelCreationFailed, "acquire publisher channel")
	}
	if p.opts.OnReturn != nil {
		go func() {
			for ret := range ch.Returns() {
				p.log.WithField("exchange", ret.Exchange).Warning("message returned by broker: ", ret.ReplyText)
				p.opts.OnReturn(ReturnEvent{
					ReplyCode:  ret.ReplyCode,
					ReplyText:  ret.ReplyText,
					Exchange:   ret.Exchange,
					RoutingKey: ret.RoutingKey,
					Payload:    ret.Body,
				})
			}
		}()
	}

	p.mu.Lock()
	p.ch = ch
	p.mu.Unlock()
	return ch, nil
}

func (p *Publisher) assertExchange(ch *broker.Channel, name string) error {
	p.mu.Lock()
	ex, ok := p.asserted[name]
	p.mu.Unlock()
	if !ok {
		ex = broker.Exchange{Name: name, Kind: "topic", Durable: true}
	}
	return ch.AssertExchange(ex)
}
