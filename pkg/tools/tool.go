// Package tools dispatches agent-requested actions to local handlers.
//
// Dispatch never fails to its caller: unknown names, handler errors and
// handler panics all become a textual Result that is sent back to the agent.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-meri/pkg/protocol"
)

// ErrUnknownTool is set on results for names with no registered tool.
var ErrUnknownTool = errors.New("tools: unknown tool")

// Handler runs a tool with the agent's arguments and returns the text sent
// back as the result.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool is a named action the agent can invoke.
type Tool struct {
	// Name is the identifier the agent calls (e.g. "openApp").
	Name string

	// Description tells the agent when to use the tool.
	Description string

	// Parameters is the argument schema, nil for tools without arguments.
	Parameters *protocol.Schema

	Handler Handler
}

// Declaration returns the tool's function declaration for the setup message.
func (t Tool) Declaration() protocol.FunctionDeclaration {
	return protocol.FunctionDeclaration{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters,
	}
}

// Invocation is one function call received from the agent.
type Invocation struct {
	CallID    string
	Name      string
	Arguments map[string]any
}

// InvocationsFrom converts protocol function calls.
func InvocationsFrom(calls []protocol.FunctionCall) []Invocation {
	out := make([]Invocation, len(calls))
	for i, c := range calls {
		out[i] = Invocation{CallID: c.ID, Name: c.Name, Arguments: c.Args}
	}
	return out
}

// Result answers an Invocation. Output is always set; Err records why the
// call failed, if it did.
type Result struct {
	CallID   string
	Name     string
	Output   string
	Err      error
	Duration time.Duration
}

// Message returns the tool response to send to the agent.
func (r Result) Message() protocol.Outbound {
	return protocol.NewToolResponse(r.CallID, r.Name, r.Output)
}

// ToolHandlerError reports a handler that returned an error or panicked.
type ToolHandlerError struct {
	Tool  string
	Err   error
	Panic bool
}

func (e *ToolHandlerError) Error() string {
	if e.Panic {
		return fmt.Sprintf("tools: %s panicked: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("tools: %s failed: %v", e.Tool, e.Err)
}

func (e *ToolHandlerError) Unwrap() error {
	return e.Err
}
