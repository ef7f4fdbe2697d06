package broker

// Topology groups exchange, queue and binding declarations. The Manager
// does not declare a Topology on connect or reconnect; entities are
// declared one at a time through Channel.AssertExchange, AssertQueue and
// AssertBinding.
type Topology struct {
	Exchanges []Exchange `json:"exchanges,omitempty" yaml:",omitempty"`
	Queues    []Queue    `json:"queues,omitempty" yaml:",omitempty"`
	Bindings  []Binding  `json:"bindings,omitempty" yaml:",omitempty"`
}

// Queue stores messages for consumption.
type Queue struct {
	Name       string                 `json:"name"`
	Durable    bool                   `json:"durable"`
	AutoDelete bool                   `json:"auto_delete" yaml:"auto_delete"`
	Exclusive  bool                   `json:"exclusive"`
	Arguments  map[string]interface{} `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

// Exchange routes published messages into zero or more queues.
type Exchange struct {
	Name       string                 `json:"name"`
	Kind       string                 `json:"kind"`
	Durable    bool                   `json:"durable"`
	AutoDelete bool                   `json:"auto_delete" yaml:"auto_delete"`
	Internal   bool                   `json:"internal"`
	Arguments  map[string]interface{} `json:"arguments,omitempty" yaml:",omitempty"`
}

// Binding connects an exchange to a queue under one or more routing keys
// (or AMQP topic patterns).
type Binding struct {
	Exchange   string                 `json:"exchange" yaml:"exchange"`
	Queue      string                 `json:"queue" yaml:"queue"`
	RoutingKey []string               `json:"routing_key" yaml:"routing_key"`
	Arguments  map[string]interface{} `json:"arguments,omitempty" yaml:",omitempty"`
}

// OverflowMode adjusts queue behavior when its maximum length is reached.
type OverflowMode string

const (
	OverflowDropHead OverflowMode = "drop-head"
	OverflowReject   OverflowMode = "reject-publish"
	OverflowRejectDL OverflowMode = "reject-publish-dlx"
)
