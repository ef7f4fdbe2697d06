package pubsub

import (
	"context"
	"regexp"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nogards95TG/hermes-mq/broker"
	"github.com/nogards95TG/hermes-mq/dedupe"
	"github.com/nogards95TG/hermes-mq/envelope"
	herrors "github.com/nogards95TG/hermes-mq/errors"
	"github.com/nogards95TG/hermes-mq/log"
	"github.com/nogards95TG/hermes-mq/observer"
	"github.com/nogards95TG/hermes-mq/parser"
	"github.com/nogards95TG/hermes-mq/reconnect"
)

// ErrorMode governs how the subscriber reacts to a failing handler.
type ErrorMode string

const (
	// Strict nacks-with-requeue the whole delivery if any matching
	// handler fails. This is the default.
	Strict ErrorMode = "strict"
	// Isolated logs failing handlers but always acks the delivery.
	Isolated ErrorMode = "isolated"
)

// EventHandler processes a decoded EventEnvelope's payload.
type EventHandler func(ctx context.Context, eventName string, data interface{}, metadata map[string]interface{}) error

type binding struct {
	pattern string
	matcher *regexp.Regexp
	handler EventHandler
}

// SubscriberOptions configures a Subscriber.
type SubscriberOptions struct {
	Exchange      string
	ExchangeKind  string
	Queue         string // empty: broker-generated, exclusive, auto-delete
	PrefetchCount int
	ErrorMode     ErrorMode
	ParserOptions parser.Options
	Serializer    envelope.Serializer
	Logger        log.Logger
	Observer      observer.Sink
	// Dedupe, when set, suppresses re-dispatch of a redelivered event
	// sharing a message identity already seen within its TTL window.
	Dedupe *dedupe.Deduplicator
	// Reconnect configures the backoff policy used to re-establish
	// consumption after the broker cancels this subscriber's consumer.
	// A zero value uses reconnect.New's defaults.
	Reconnect reconnect.Options
}

// Subscriber binds a queue to an exchange under one or more AMQP topic
// patterns and dispatches matching deliveries to registered handlers.
type Subscriber struct {
	mgr       *broker.Manager
	opts      SubscriberOptions
	log       log.Logger
	obs       observer.Sink
	reconnect *reconnect.Manager

	mu       sync.RWMutex
	bindings []binding
	ch       *broker.Channel
	queue    string
	started  bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSubscriber constructs a Subscriber. Bindings registered via On
// before Start are applied during Start; registered afterward are bound
// immediately against the live channel.
func NewSubscriber(mgr *broker.Manager, opts SubscriberOptions) *Subscriber {
	if opts.PrefetchCount <= 0 {
		opts.PrefetchCount = 10
	}
	if opts.ErrorMode == "" {
		opts.ErrorMode = Strict
	}
	if opts.ExchangeKind == "" {
		opts.ExchangeKind = "topic"
	}
	if opts.Serializer == nil {
		opts.Serializer = envelope.Default
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Observer == nil {
		opts.Observer = observer.Noop{}
	}
	opts.Reconnect.Logger = opts.Logger
	s := &Subscriber{mgr: mgr, opts: opts, log: opts.Logger, obs: opts.Observer, stopCh: make(chan struct{})}
	s.reconnect = reconnect.New(opts.Reconnect)
	return s
}

// On registers handler against pattern.
func (s *Subscriber) On(pattern string, handler EventHandler) error {
	matcher, err := compilePattern(pattern)
	if err != nil {
		return herrors.Wrap(err, herrors.CodeValidationMissingPattern, "compile subscription pattern")
	}
	b := binding{pattern: pattern, matcher: matcher, handler: handler}

	s.mu.Lock()
	s.bindings = append(s.bindings, b)
	started := s.started
	ch := s.ch
	queue := s.queue
	s.mu.Unlock()

	if started && ch != nil {
		return ch.AssertBinding(broker.Binding{Exchange: s.opts.Exchange, Queue: queue, RoutingKey: []string{pattern}})
	}
	return nil
}

// Start asserts the exchange and queue, binds every registered pattern,
// sets prefetch, and begins consuming. If the broker later cancels the
// consumer (e.g. the queue is deleted out from under it), the subscriber
// automatically re-establishes it with bounded exponential backoff.
func (s *Subscriber) Start(ctx context.Context) error {
	if err := s.startConsuming(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

// startConsuming acquires a channel, asserts topology, binds every
// registered pattern and begins consuming. It is called both from Start
// and from the reconnect manager after a broker-initiated consumer
// cancellation.
func (s *Subscriber) startConsuming(ctx context.Context) error {
	ch, err := s.mgr.GetChannel(ctx, broker.Plain)
	if err != nil {
		return herrors.Wrap(err, herrors.CodeChannelCreationFailed, "acquire subscriber channel")
	}
	if err := ch.AssertExchange(broker.Exchange{Name: s.opts.Exchange, Kind: s.opts.ExchangeKind, Durable: true}); err != nil {
		return err
	}

	isAutoQueue := s.opts.Queue == ""
	qname, err := ch.AssertQueue(broker.Queue{
		Name:       s.opts.Queue,
		Durable:    !isAutoQueue,
		Exclusive:  isAutoQueue,
		AutoDelete: isAutoQueue,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ch = ch
	s.queue = qname
	bindings := append([]binding(nil), s.bindings...)
	s.mu.Unlock()

	for _, b := range bindings {
		if err := ch.AssertBinding(broker.Binding{Exchange: s.opts.Exchange, Queue: qname, RoutingKey: []string{b.pattern}}); err != nil {
			return err
		}
	}

	if err := ch.Raw().Qos(s.opts.PrefetchCount, 0, false); err != nil {
		return herrors.Wrap(err, herrors.CodeChannelCreationFailed, "set subscriber qos")
	}
	deliveries, err := ch.Raw().Consume(qname, "", false, isAutoQueue, false, false, nil)
	if err != nil {
		return herrors.Wrap(err, herrors.CodeChannelCreationFailed, "consume subscription queue")
	}
	cancelled := ch.Raw().NotifyCancel(make(chan string, 1))

	s.obs.OnService(observer.ServiceEvent{Component: "subscriber:" + qname, Started: true, Timestamp: time.Now()})
	go s.consumeLoop(deliveries)
	go s.watchCancel(cancelled)
	return nil
}

// watchCancel schedules a reconnect when the broker cancels this
// subscriber's consumer out of band (e.g. its queue was deleted), rather
// than leaving the subscriber silently idle.
func (s *Subscriber) watchCancel(cancelled <-chan string) {
	select {
	case reason, ok := <-cancelled:
		if !ok {
			return
		}
		s.log.WithField("reason", reason).Warning("consumer cancelled by broker, scheduling reconnect")
		s.reconnect.ScheduleReconnect(func() error {
			return s.startConsuming(context.Background())
		})
	case <-s.stopCh:
	}
}

func (s *Subscriber) consumeLoop(deliveries <-chan amqp.Delivery) {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			go s.handleDelivery(d)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Subscriber) handleDelivery(d amqp.Delivery) {
	start := time.Now()
	res := parser.Parse(d.Body, s.opts.ParserOptions)
	if !res.Success {
		s.applyDisposition(d, res)
		s.obs.OnDelivery(observer.DeliveryEvent{Source: "subscriber", Poison: true, Err: res.Err, Duration: time.Since(start), Timestamp: time.Now()})
		return
	}

	var ev envelope.EventEnvelope
	if err := s.opts.Serializer.Decode(d.Body, &ev); err != nil {
		s.applyDisposition(d, parser.Result{Success: false, Err: err, Disposition: parser.Reject})
		return
	}
	eventName := ev.EventName
	if eventName == "" {
		eventName = d.RoutingKey
	}

	s.mu.RLock()
	var matched []binding
	for _, b := range s.bindings {
		if b.matcher.MatchString(eventName) {
			matched = append(matched, b)
		}
	}
	s.mu.RUnlock()

	if len(matched) == 0 {
		s.log.WithField("event", eventName).Warning("no subscriber binding matched event, acking to avoid buildup")
		_ = d.Ack(false)
		return
	}

	dispatch := func() (interface{}, error) {
		var failed bool
		for _, b := range matched {
			if err := b.handler(context.Background(), eventName, ev.Data, ev.Metadata); err != nil {
				failed = true
				s.log.WithField("pattern", b.pattern).Error("subscriber handler failed: ", err.Error())
				s.obs.OnDelivery(observer.DeliveryEvent{Source: "subscriber", Command: eventName, Success: false, Err: err, Duration: time.Since(start), Timestamp: time.Now()})
			}
		}
		if failed {
			return nil, herrors.New(herrors.CodeValidationConfig, "one or more subscriber handlers failed")
		}
		return nil, nil
	}

	var failed bool
	if s.opts.Dedupe != nil {
		outcome, err := s.opts.Dedupe.Process(d.Body, d.MessageId, dispatch)
		if outcome.Duplicate {
			s.log.WithField("event", eventName).Info("duplicate delivery suppressed")
		}
		failed = err != nil
	} else {
		_, err := dispatch()
		failed = err != nil
	}

	if failed && s.opts.ErrorMode == Strict {
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
	if !failed {
		s.obs.OnDelivery(observer.DeliveryEvent{Source: "subscriber", Command: eventName, Success: true, Duration: time.Since(start), Timestamp: time.Now()})
	}
}

func (s *Subscriber) applyDisposition(d amqp.Delivery, res parser.Result) {
	switch res.Disposition {
	case parser.DLQ, parser.Ignore:
		_ = d.Ack(false)
	default:
		_ = d.Nack(false, false)
	}
}

// Stop cancels the consumer and closes the channel.
func (s *Subscriber) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.reconnect.Cancel()
		s.mu.RLock()
		ch := s.ch
		qname := s.queue
		s.mu.RUnlock()
		if ch != nil {
			err = ch.Close()
		}
		s.obs.OnService(observer.ServiceEvent{Component: "subscriber:" + qname, Started: false, Timestamp: time.Now()})
	})
	return err
}
