package session

import (
	"context"

	"github.com/teslashibe/go-meri/pkg/audioio"
	"github.com/teslashibe/go-meri/pkg/protocol"
	"github.com/teslashibe/go-meri/pkg/tools"
)

// Transport is an open duplex channel to the remote agent.
type Transport interface {
	// Send writes one outbound message. Safe for concurrent use.
	Send(ctx context.Context, msg protocol.Outbound) error

	// OnMessage registers the inbound handler. Transports deliver nothing
	// before it is called and call fn from a single goroutine, in arrival
	// order. A failed or closed channel is delivered as a KindError event.
	OnMessage(fn func(protocol.Inbound))

	// Close releases the channel. Safe to call more than once.
	Close() error
}

// Dialer opens transports. Dial returns once the remote side confirmed
// the setup.
type Dialer interface {
	Dial(ctx context.Context, opts protocol.SetupOptions) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, opts protocol.SetupOptions) (Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, opts protocol.SetupOptions) (Transport, error) {
	return f(ctx, opts)
}

// Devices acquires the audio devices for one session. *audioio.Factory
// implements it.
type Devices interface {
	OpenSource(ctx context.Context) (audioio.Source, error)
	OpenOutput(ctx context.Context) (audioio.Output, error)
}

// ToolDispatcher runs tool invocations. *tools.Dispatcher implements it.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, inv tools.Invocation) tools.Result
	Declarations() []protocol.FunctionDeclaration
}

var (
	_ Devices        = (*audioio.Factory)(nil)
	_ ToolDispatcher = (*tools.Dispatcher)(nil)
)
