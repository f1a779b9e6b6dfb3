package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-meri/pkg/protocol"
)

// Dispatcher maps tool names to handlers.
type Dispatcher struct {
	logger *slog.Logger

	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewDispatcher creates a dispatcher with the given tools registered.
// Invalid or duplicate tools are skipped with a warning.
func NewDispatcher(logger *slog.Logger, tools ...Tool) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		logger: logger,
		tools:  make(map[string]Tool),
	}
	for _, t := range tools {
		if err := d.Register(t); err != nil {
			logger.Warn("skipping tool", "name", t.Name, "error", err)
		}
	}
	return d
}

// Register adds a tool. Names must be unique and handlers non-nil.
func (d *Dispatcher) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tools: tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tools: %s has no handler", t.Name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.tools[t.Name]; ok {
		return fmt.Errorf("tools: %s already registered", t.Name)
	}
	d.tools[t.Name] = t
	d.order = append(d.order, t.Name)
	return nil
}

// Get returns the tool registered under name.
func (d *Dispatcher) Get(name string) (Tool, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tools[name]
	return t, ok
}

// Names returns the registered tool names in registration order.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.order...)
}

// Declarations returns the function declarations for every tool, in
// registration order.
func (d *Dispatcher) Declarations() []protocol.FunctionDeclaration {
	d.mu.RLock()
	defer d.mu.RUnlock()

	decls := make([]protocol.FunctionDeclaration, 0, len(d.order))
	for _, name := range d.order {
		decls = append(decls, d.tools[name].Declaration())
	}
	return decls
}

// Dispatch runs the tool named by inv synchronously. It always returns a
// Result carrying inv's call ID.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) Result {
	start := time.Now()
	res := Result{CallID: inv.CallID, Name: inv.Name}

	t, ok := d.Get(inv.Name)
	if !ok {
		res.Output = fmt.Sprintf("Could not find tool %s", inv.Name)
		res.Err = fmt.Errorf("%w: %s", ErrUnknownTool, inv.Name)
		d.logger.Warn("unknown tool", "name", inv.Name, "call_id", inv.CallID)
		return res
	}

	args := inv.Arguments
	if args == nil {
		args = map[string]any{}
	}

	out, err := d.run(ctx, t, args)
	res.Duration = time.Since(start)
	if err != nil {
		res.Output = fmt.Sprintf("Error: %v", err.Err)
		res.Err = err
		d.logger.Warn("tool failed", "name", inv.Name, "call_id", inv.CallID, "error", err)
		return res
	}

	res.Output = out
	d.logger.Info("tool executed", "name", inv.Name, "call_id", inv.CallID, "result", out, "duration", res.Duration)
	return res
}

func (d *Dispatcher) run(ctx context.Context, t Tool, args map[string]any) (out string, herr *ToolHandlerError) {
	defer func() {
		if r := recover(); r != nil {
			herr = &ToolHandlerError{Tool: t.Name, Err: fmt.Errorf("%v", r), Panic: true}
		}
	}()

	out, err := t.Handler(ctx, args)
	if err != nil {
		return "", &ToolHandlerError{Tool: t.Name, Err: err}
	}
	return out, nil
}
