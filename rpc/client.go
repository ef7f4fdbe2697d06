// Package rpc implements request/response messaging over the broker's
// direct reply-to pseudo-queue.
package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nogards95TG/hermes-mq/broker"
	"github.com/nogards95TG/hermes-mq/envelope"
	herrors "github.com/nogards95TG/hermes-mq/errors"
	"github.com/nogards95TG/hermes-mq/log"
	"github.com/nogards95TG/hermes-mq/observer"
)

// replyToQueue is RabbitMQ's built-in direct reply-to pseudo-queue.
const replyToQueue = "amq.rabbitmq.reply-to"

// sweepInterval is the periodic safety-net cleanup period for expired
// pending requests.
const sweepInterval = 30 * time.Second

// ClientMiddleware rewrites (command, payload) before encoding.
type ClientMiddleware func(command string, payload interface{}) (string, interface{})

// ClientOptions configures a Client.
type ClientOptions struct {
	CommandQueue string // queue the request is published to
	Timeout      time.Duration
	Serializer   envelope.Serializer
	Logger       log.Logger
	Observer     observer.Sink
}

type pendingRequest struct {
	id        string
	resolve   chan envelope.ResponseEnvelope
	reject    chan error
	deadline  time.Time
	cancelled chan struct{}
}

// Client is an RPC client bound to a single Manager and command queue.
type Client struct {
	mgr    *broker.Manager
	opts   ClientOptions
	serial envelope.Serializer
	log    log.Logger
	obs    observer.Sink

	mu          sync.Mutex
	ch          *broker.Channel
	sinkName    string
	pending     map[string]*pendingRequest
	middlewares []ClientMiddleware
	closed      bool

	sweepStop chan struct{}
	sweepOnce sync.Once
}

// NewClient constructs a Client. Initialization of the channel and
// direct reply-to consumer happens lazily on the first Send.
func NewClient(mgr *broker.Manager, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
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
	return &Client{
		mgr:       mgr,
		opts:      opts,
		serial:    opts.Serializer,
		log:       opts.Logger,
		obs:       opts.Observer,
		pending:   make(map[string]*pendingRequest),
		sweepStop: make(chan struct{}),
	}
}

// Use registers outbound client-side middleware applied, in registration
// order, before encoding.
func (c *Client) Use(mw ...ClientMiddleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, mw...)
}

// SendOptions configures an individual Send call.
type SendOptions struct {
	Timeout            time.Duration
	Metadata           map[string]interface{}
	CancellationSignal <-chan struct{}
}

// IsReady reports whether the client is initialized and the connection
// is live.
func (c *Client) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch != nil && c.mgr.State() == observer.StateConnected
}

// Send publishes command/data to the command queue and awaits a matching
// reply on the direct reply-to pseudo-queue.
func (c *Client) Send(ctx context.Context, command string, data interface{}, opts SendOptions) (interface{}, error) {
	if command == "" {
		return nil, herrors.New(herrors.CodeValidationMissingCommand, "command must not be empty")
	}

	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	for _, mw := range c.middlewares {
		command, data = mw(command, data)
	}
	c.mu.Unlock()

	command = envelope.NormalizeCommand(command)
	req := envelope.RequestEnvelope{
		ID:        uuid.NewString(),
		Command:   command,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
		Metadata:  opts.Metadata,
	}
	body, err := c.serial.Encode(req)
	if err != nil {
		return nil, herrors.Wrap(err, herrors.CodeValidationConfig, "encode request")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.opts.Timeout
	}
	pr := &pendingRequest{
		id:        req.ID,
		resolve:   make(chan envelope.ResponseEnvelope, 1),
		reject:    make(chan error, 1),
		deadline:  time.Now().Add(timeout),
		cancelled: make(chan struct{}),
	}
	c.mu.Lock()
	c.pending[req.ID] = pr
	ch := c.ch
	c.mu.Unlock()

	start := time.Now()
	_, err = ch.PublishConfirm(c.sinkExchange(), c.opts.CommandQueue, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: req.ID,
		ReplyTo:       replyToQueue,
		Body:          body,
		MessageId:     req.ID,
		Timestamp:     time.Now(),
	})
	if err != nil {
		c.removePending(req.ID)
		wrapped := herrors.Wrap(err, herrors.CodeConnectionFailed, "publish RPC request")
		c.obs.OnRPC(observer.RPCEvent{Command: command, CorrelationID: req.ID, Err: wrapped, Timestamp: time.Now()})
		return nil, wrapped
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-pr.resolve:
		c.emitRPC(command, req.ID, true, false, false, time.Since(start), nil)
		if !resp.Success {
			var details interface{}
			if resp.Error != nil {
				details = resp.Error.Details
			}
			return nil, herrors.FromReport(herrors.Code(errCodeOrDefault(resp)), errMessageOrDefault(resp), details)
		}
		return resp.Data, nil
	case err := <-pr.reject:
		c.emitRPC(command, req.ID, false, false, false, time.Since(start), err)
		return nil, err
	case <-timer.C:
		c.removePending(req.ID)
		err := herrors.New(herrors.CodeTimeoutRPCReply, "RPC reply timed out")
		c.emitRPC(command, req.ID, false, true, false, time.Since(start), err)
		return nil, err
	case <-cancellationChan(opts.CancellationSignal):
		c.removePending(req.ID)
		err := herrors.New(herrors.CodeStateAborted, "RPC request aborted")
		c.emitRPC(command, req.ID, false, false, true, time.Since(start), err)
		return nil, err
	case <-ctx.Done():
		c.removePending(req.ID)
		return nil, ctx.Err()
	}
}

// Close cancels the reply consumer, rejects all pending requests with a
// *Client closing* error and closes the channel.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	ch := c.ch
	c.mu.Unlock()

	closingErr := herrors.New(herrors.CodeStateClosing, "client closing")
	for _, pr := range pending {
		pr.reject <- closingErr
	}
	c.sweepOnce.Do(func() { close(c.sweepStop) })
	if ch != nil {
		return ch.Close()
	}
	return nil
}

func (c *Client) sinkExchange() string {
	return "" // default exchange: routingKey == queue name
}

func (c *Client) ensureInitialized(ctx context.Context) error {
	c.mu.Lock()
	if c.ch != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ch, err := c.mgr.GetChannel(ctx, broker.Confirm)
	if err != nil {
		return herrors.Wrap(err, herrors.CodeChannelCreationFailed, "acquire RPC client channel")
	}
	if _, err := ch.AssertQueue(broker.Queue{Name: c.opts.CommandQueue, Durable: true}); err != nil {
		return err
	}

	if err := ch.Raw().Qos(0, 0, false); err != nil {
		return herrors.Wrap(err, herrors.CodeChannelCreationFailed, "set RPC client qos")
	}
	deliveries, err := ch.Raw().Consume(replyToQueue, "", true, true, false, false, nil)
	if err != nil {
		return herrors.Wrap(err, herrors.CodeChannelCreationFailed, "consume direct reply-to")
	}

	c.mu.Lock()
	c.ch = ch
	c.sinkName = replyToQueue
	c.mu.Unlock()

	go c.handleReplies(deliveries)
	c.startSweep()
	return nil
}

// handleReplies runs the consumer callback that matches replies to
// pending requests by correlation id.
func (c *Client) handleReplies(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		id := d.CorrelationId
		if id == "" {
			c.log.Warning("RPC reply missing correlation id, discarding")
			continue
		}
		pr := c.removePending(id)
		if pr == nil {
			c.log.WithField("correlation_id", id).Warning("unknown RPC correlation id, discarding reply")
			continue
		}
		var resp envelope.ResponseEnvelope
		if err := c.serial.Decode(d.Body, &resp); err != nil {
			pr.reject <- herrors.Wrap(err, herrors.CodeMessageBadJSON, "decode RPC response")
			continue
		}
		pr.resolve <- resp
	}
}

func (c *Client) removePending(id string) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	pr, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return pr
}

func (c *Client) startSweep() {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweepExpired()
			case <-c.sweepStop:
				return
			}
		}
	}()
}

// sweepExpired is the periodic safety net against leaked pending entries
// whose timers somehow never fired.
func (c *Client) sweepExpired() {
	now := time.Now()
	c.mu.Lock()
	var expired []*pendingRequest
	for id, pr := range c.pending {
		if now.After(pr.deadline) {
			expired = append(expired, pr)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()
	for _, pr := range expired {
		pr.reject <- herrors.New(herrors.CodeTimeoutRPCReply, "RPC reply timed out (swept)")
	}
}

func cancellationChan(sig <-chan struct{}) <-chan struct{} {
	if sig != nil {
		return sig
	}
	return nil
}

func (c *Client) emitRPC(command, correlationID string, success, timeout, aborted bool, dur time.Duration, err error) {
	c.obs.OnRPC(observer.RPCEvent{
		Command:       command,
		CorrelationID: correlationID,
		Success:       success,
		Timeout:       timeout,
		Aborted:       aborted,
		Duration:      dur,
		Err:           err,
		Timestamp:     time.Now(),
	})
}

func errCodeOrDefault(resp envelope.ResponseEnvelope) string {
	if resp.Error != nil {
		return resp.Error.Code
	}
	return string(herrors.CodeStateInvalid)
}

func errMessageOrDefault(resp envelope.ResponseEnvelope) string {
	if resp.Error != nil {
		return resp.Error.Message
	}
	return "RPC call failed"
}
