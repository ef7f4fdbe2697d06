package rpc

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nogards95TG/hermes-mq/broker"
	"github.com/nogards95TG/hermes-mq/dedupe"
	"github.com/nogards95TG/hermes-mq/envelope"
	herrors "github.com/nogards95TG/hermes-mq/errors"
	"github.com/nogards95TG/hermes-mq/log"
	"github.com/nogards95TG/hermes-mq/middleware"
	"github.com/nogards95TG/hermes-mq/observer"
	"github.com/nogards95TG/hermes-mq/parser"
)

// AckMode governs whether the server acks deliveries automatically after
// a handler runs, or leaves acking to the handler.
type AckMode string

const (
	AckAuto   AckMode = "auto"
	AckManual AckMode = "manual"
)

// ServerOptions configures a Server.
type ServerOptions struct {
	Queue string
	// Durable controls whether the command queue survives broker
	// restarts. Defaults to true; pass a pointer to false to opt out.
	Durable         *bool
	PrefetchCount   int
	AckMode         AckMode
	ShutdownTimeout time.Duration
	ParserOptions   parser.Options
	Serializer      envelope.Serializer
	Logger          log.Logger
	Observer        observer.Sink
	// Dedupe, when set, suppresses re-dispatch of a redelivered command
	// sharing a message identity already seen within its TTL window.
	Dedupe *dedupe.Deduplicator
}

type registration struct {
	command string
	mws     []middleware.Middleware
	handler middleware.Handler
	chain   middleware.Chain
}

// Server consumes a command queue, dispatches each request through a
// registered middleware chain and publishes a ResponseEnvelope to the
// request's replyTo.
type Server struct {
	mgr    *broker.Manager
	opts   ServerOptions
	serial envelope.Serializer
	log    log.Logger
	obs    observer.Sink

	mu       sync.RWMutex
	global   []middleware.Middleware
	handlers map[string]registration

	ch       *broker.Channel
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewServer constructs a Server. Queue assertion and consumption begin on
// Start.
func NewServer(mgr *broker.Manager, opts ServerOptions) *Server {
	if opts.Durable == nil {
		durable := true
		opts.Durable = &durable
	}
	if opts.PrefetchCount <= 0 {
		opts.PrefetchCount = 10
	}
	if opts.AckMode == "" {
		opts.AckMode = AckAuto
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
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
	return &Server{
		mgr:      mgr,
		opts:     opts,
		serial:   opts.Serializer,
		log:      opts.Logger,
		obs:      opts.Observer,
		handlers: make(map[string]registration),
		stopCh:   make(chan struct{}),
	}
}

// Use registers global middleware applied, ahead of any per-handler
// stack, to every command.
func (s *Server) Use(mw ...middleware.Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global = append(s.global, mw...)
	s.recomposeLocked()
}

// RegisterHandler composes stack (zero or more middleware followed by a
// terminal Handler) behind the server's global middleware and caches it
// for command. Duplicate registrations replace the previous one.
func (s *Server) RegisterHandler(command string, stack ...interface{}) error {
	command = envelope.NormalizeCommand(command)
	if command == "" {
		return herrors.New(herrors.CodeValidationMissingCommand, "command must not be empty")
	}
	if len(stack) == 0 {
		return herrors.New(herrors.CodeValidationMissingHandler, "handler stack must not be empty")
	}
	handler, ok := stack[len(stack)-1].(middleware.Handler)
	if !ok {
		return herrors.New(herrors.CodeValidationMissingHandler, "last stack element must be a Handler")
	}
	mws := make([]middleware.Middleware, 0, len(stack)-1)
	for _, m := range stack[:len(stack)-1] {
		mw, ok := m.(middleware.Middleware)
		if !ok {
			return herrors.New(herrors.CodeValidationConfig, "handler stack elements must be Middleware")
		}
		mws = append(mws, mw)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[command] = registration{command: command, mws: mws, handler: handler, chain: s.composeLocked(mws, handler)}
	return nil
}

func (s *Server) composeLocked(mws []middleware.Middleware, handler middleware.Handler) middleware.Chain {
	full := make([]middleware.Middleware, 0, len(s.global)+len(mws))
	full = append(full, s.global...)
	full = append(full, mws...)
	return middleware.Compose(full, handler)
}

// recomposeLocked rebuilds every cached chain so newly-added global
// middleware applies to already-registered commands too.
func (s *Server) recomposeLocked() {
	for cmd, reg := range s.handlers {
		reg.chain = s.composeLocked(reg.mws, reg.handler)
		s.handlers[cmd] = reg
	}
}

// Start acquires a channel, asserts the queue, sets prefetch and begins
// consuming.
func (s *Server) Start(ctx context.Context) error {
	ch, err := s.mgr.GetChannel(ctx, broker.Plain)
	if err != nil {
		return herrors.Wrap(err, herrors.CodeChannelCreationFailed, "acquire RPC server channel")
	}
	if _, err := ch.AssertQueue(broker.Queue{Name: s.opts.Queue, Durable: *s.opts.Durable}); err != nil {
		return err
	}
	if err := ch.Raw().Qos(s.opts.PrefetchCount, 0, false); err != nil {
		return herrors.Wrap(err, herrors.CodeChannelCreationFailed, "set RPC server qos")
	}
	// noAck is always false: the broker must not ack a command delivery
	// at receipt. AckMode only decides whether replyFn auto-acks once the
	// chain has run, or the handler must call ctx.Ack()/ctx.Nack() itself.
	deliveries, err := ch.Raw().Consume(s.opts.Queue, "", false, false, false, false, nil)
	if err != nil {
		return herrors.Wrap(err, herrors.CodeChannelCreationFailed, "consume command queue")
	}

	s.mu.Lock()
	s.ch = ch
	s.mu.Unlock()

	s.obs.OnService(observer.ServiceEvent{Component: "rpc-server:" + s.opts.Queue, Started: true, Timestamp: time.Now()})
	go s.consumeLoop(deliveries)
	return nil
}

func (s *Server) consumeLoop(deliveries <-chan amqp.Delivery) {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			s.wg.Add(1)
			go func(d amqp.Delivery) {
				defer s.wg.Done()
				s.handleDelivery(d)
			}(d)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) handleDelivery(d amqp.Delivery) {
	start := time.Now()
	res := parser.Parse(d.Body, s.opts.ParserOptions)
	if !res.Success {
		s.applyDisposition(d, res)
		s.obs.OnDelivery(observer.DeliveryEvent{Source: "rpc-server", Poison: true, Err: res.Err, Duration: time.Since(start), Timestamp: time.Now()})
		return
	}

	var req envelope.RequestEnvelope
	if err := s.serial.Decode(d.Body, &req); err != nil {
		s.applyDisposition(d, parser.Result{Success: false, Err: err, Disposition: parser.Reject})
		return
	}
	command := envelope.NormalizeCommand(req.Command)

	var acked bool
	ackFn := func() {
		if !acked {
			acked = true
			_ = d.Ack(false)
		}
	}
	nackFn := func(requeue bool) {
		if !acked {
			acked = true
			_ = d.Nack(false, requeue)
		}
	}
	replyFn := func(value interface{}, replyErr error) {
		resp := envelope.ResponseEnvelope{ID: req.ID, Timestamp: time.Now().UnixMilli()}
		if replyErr != nil {
			resp.Success = false
			resp.Error = toResponseError(replyErr)
		} else {
			resp.Success = true
			resp.Data = value
		}
		s.publishResponse(d.ReplyTo, d.CorrelationId, resp)
		if s.opts.AckMode == AckAuto {
			// Auto-mode acks regardless of handler outcome; retry/DLQ
			// policy around handler errors is the caller's responsibility.
			ackFn()
		}
	}

	mwctx := middleware.NewContext(context.Background(), command, req.Data, map[string]interface{}{
		"correlationId": d.CorrelationId,
		"replyTo":       d.ReplyTo,
	}, s.log, replyFn, ackFn, nackFn)

	s.mu.RLock()
	reg, ok := s.handlers[command]
	s.mu.RUnlock()

	var result interface{}
	var err error
	if !ok {
		err = herrors.New(herrors.CodeValidationNoHandler, "NO_HANDLER")
	} else if s.opts.Dedupe != nil {
		var outcome dedupe.Outcome
		outcome, err = s.opts.Dedupe.Process(d.Body, d.MessageId, func() (interface{}, error) {
			return reg.chain(mwctx)
		})
		result = outcome.Result
	} else {
		result, err = reg.chain(mwctx)
	}

	if !mwctx.Replied() {
		mwctx.Reply(result, err)
	}

	s.obs.OnDelivery(observer.DeliveryEvent{
		Source: "rpc-server", Command: command, Success: err == nil,
		Err: err, Duration: time.Since(start), Timestamp: time.Now(),
	})
}

func (s *Server) publishResponse(replyTo, correlationID string, resp envelope.ResponseEnvelope) {
	if replyTo == "" {
		return
	}
	body, err := s.serial.Encode(resp)
	if err != nil {
		s.log.Error("failed to encode RPC response: ", err.Error())
		return
	}
	s.mu.RLock()
	ch := s.ch
	s.mu.RUnlock()
	if ch == nil {
		return
	}
	if _, err := ch.PublishConfirm("", replyTo, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		Body:          body,
		Timestamp:     time.Now(),
	}); err != nil {
		s.log.Error("failed to publish RPC response: ", err.Error())
	}
}

func (s *Server) applyDisposition(d amqp.Delivery, res parser.Result) {
	switch res.Disposition {
	case parser.DLQ:
		// The poison delivery is acked, which drops it from the live
		// queue; it is not republished, and an acked message is not
		// dead-lettered by the broker either.
		_ = d.Ack(false)
	case parser.Ignore:
		_ = d.Ack(false)
	default:
		_ = d.Nack(false, false)
	}
}

func toResponseError(err error) *envelope.ResponseError {
	code := string(herrors.CodeOf(err))
	if code == "" {
		code = "HANDLER_ERROR"
	}
	var details interface{}
	var herr *herrors.Error
	if herrors.As(err, &herr) {
		details = herr.Details()
	}
	return &envelope.ResponseError{Code: code, Message: err.Error(), Details: details}
}

// Stop stops dispatching new deliveries, awaits in-flight handlers up to
// ShutdownTimeout, then closes the channel, which ends the consumer at
// the broker. The consumer is not cancelled separately before that.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(s.opts.ShutdownTimeout):
			s.log.Warning("shutdown timeout elapsed with in-flight RPC handlers still running")
		}
		s.mu.RLock()
		ch := s.ch
		s.mu.RUnlock()
		if ch != nil {
			err = ch.Close()
		}
		s.obs.OnService(observer.ServiceEvent{Component: "rpc-server:" + s.opts.Queue, Started: false, Timestamp: time.Now()})
	})
	return err
}
