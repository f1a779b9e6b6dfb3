package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-meri/pkg/protocol"
)

var testApps = []string{"This PC", "Settings", "Terminal", "Notes", "Calculator", "Notepad Pro"}

func newBuiltinDispatcher(shell Shell) *Dispatcher {
	return NewDispatcher(nil, Builtins(shell, testApps)...)
}

func TestDispatch_UnknownTool(t *testing.T) {
	d := newBuiltinDispatcher(NewMockShell(testApps...))

	res := d.Dispatch(context.Background(), Invocation{CallID: "c1", Name: "launchRocket"})

	assert.Equal(t, "c1", res.CallID)
	assert.Equal(t, "launchRocket", res.Name)
	assert.Equal(t, "Could not find tool launchRocket", res.Output)
	assert.ErrorIs(t, res.Err, ErrUnknownTool)
}

func TestDispatch_OpenApp(t *testing.T) {
	tests := []struct {
		name   string
		query  any
		output string
		opened []string
		isErr  bool
	}{
		{"exact", "Terminal", "Opened Terminal", []string{"Terminal"}, false},
		{"case insensitive substring", "calc", "Opened Calculator", []string{"Calculator"}, false},
		{"first match wins", "note", "Opened Notes", []string{"Notes"}, false},
		{"no match", "Spreadsheet", "Could not find app Spreadsheet", nil, false},
		{"missing argument", nil, "Error: appName is required", nil, true},
		{"wrong type", 42, "Error: appName is required", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shell := NewMockShell(testApps...)
			d := newBuiltinDispatcher(shell)

			args := map[string]any{}
			if tt.query != nil {
				args["appName"] = tt.query
			}
			res := d.Dispatch(context.Background(), Invocation{CallID: "id", Name: "openApp", Arguments: args})

			assert.Equal(t, tt.output, res.Output)
			assert.Equal(t, tt.opened, shell.OpenedApps())
			if tt.isErr {
				var herr *ToolHandlerError
				require.ErrorAs(t, res.Err, &herr)
				assert.Equal(t, "openApp", herr.Tool)
				assert.False(t, herr.Panic)
			} else {
				assert.NoError(t, res.Err)
			}
		})
	}
}

func TestDispatch_OpenAppShellRefuses(t *testing.T) {
	// The registry matches but the shell does not know the app.
	shell := NewMockShell("Settings")
	d := newBuiltinDispatcher(shell)

	res := d.Dispatch(context.Background(), Invocation{CallID: "id", Name: "openApp", Arguments: map[string]any{"appName": "terminal"}})

	assert.Equal(t, "Could not find app terminal", res.Output)
	assert.Empty(t, shell.OpenedApps())
}

func TestDispatch_ThemeAndWallpaper(t *testing.T) {
	shell := NewMockShell()
	d := newBuiltinDispatcher(shell)
	ctx := context.Background()

	res := d.Dispatch(ctx, Invocation{CallID: "a", Name: "toggleTheme"})
	assert.Equal(t, "Theme toggled", res.Output)

	res = d.Dispatch(ctx, Invocation{CallID: "b", Name: "changeWallpaper"})
	assert.Equal(t, "Wallpaper changed", res.Output)

	d.Dispatch(ctx, Invocation{CallID: "c", Name: "changeWallpaper"})

	assert.Equal(t, 1, shell.Toggles)
	assert.Equal(t, 2, shell.Wallpapers)
}

func TestDispatch_HandlerError(t *testing.T) {
	d := NewDispatcher(nil, Tool{
		Name: "fail",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("disk on fire")
		},
	})

	res := d.Dispatch(context.Background(), Invocation{CallID: "x", Name: "fail"})

	assert.Equal(t, "Error: disk on fire", res.Output)
	var herr *ToolHandlerError
	require.ErrorAs(t, res.Err, &herr)
	assert.EqualError(t, herr.Err, "disk on fire")
}

func TestDispatch_HandlerPanic(t *testing.T) {
	d := NewDispatcher(nil, Tool{
		Name: "boom",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			panic("nil map")
		},
	})

	var res Result
	require.NotPanics(t, func() {
		res = d.Dispatch(context.Background(), Invocation{CallID: "x", Name: "boom"})
	})

	assert.Equal(t, "x", res.CallID)
	assert.Equal(t, "Error: nil map", res.Output)
	var herr *ToolHandlerError
	require.ErrorAs(t, res.Err, &herr)
	assert.True(t, herr.Panic)
}

func TestDispatch_NilArgumentsBecomeEmpty(t *testing.T) {
	var got map[string]any
	d := NewDispatcher(nil, Tool{
		Name: "echo",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			got = args
			return "ok", nil
		},
	})

	d.Dispatch(context.Background(), Invocation{Name: "echo"})
	assert.NotNil(t, got)
}

func TestRegister(t *testing.T) {
	d := NewDispatcher(nil)
	noop := func(ctx context.Context, args map[string]any) (string, error) { return "", nil }

	require.NoError(t, d.Register(Tool{Name: "a", Handler: noop}))
	assert.Error(t, d.Register(Tool{Name: "a", Handler: noop}), "duplicate")
	assert.Error(t, d.Register(Tool{Name: "", Handler: noop}), "empty name")
	assert.Error(t, d.Register(Tool{Name: "b"}), "nil handler")

	assert.Equal(t, []string{"a"}, d.Names())
}

func TestDeclarations(t *testing.T) {
	d := newBuiltinDispatcher(NewMockShell())

	decls := d.Declarations()
	require.Len(t, decls, 3)

	names := []string{decls[0].Name, decls[1].Name, decls[2].Name}
	assert.Equal(t, []string{"openApp", "toggleTheme", "changeWallpaper"}, names)

	params := decls[0].Parameters
	require.NotNil(t, params)
	assert.Equal(t, protocol.TypeObject, params.Type)
	assert.Equal(t, []string{"appName"}, params.Required)
	assert.Equal(t, protocol.TypeString, params.Properties["appName"].Type)
	assert.Nil(t, decls[1].Parameters)
}

func TestResultMessage(t *testing.T) {
	res := Result{CallID: "c9", Name: "toggleTheme", Output: "Theme toggled"}

	msg := res.Message()
	require.NotNil(t, msg.ToolResponse)
	fr := msg.ToolResponse.FunctionResponses[0]
	assert.Equal(t, "c9", fr.ID)
	assert.Equal(t, "toggleTheme", fr.Name)
	assert.Equal(t, "Theme toggled", fr.Response.Result)
}

func TestInvocationsFrom(t *testing.T) {
	invs := InvocationsFrom([]protocol.FunctionCall{
		{ID: "1", Name: "openApp", Args: map[string]any{"appName": "Notes"}},
		{ID: "2", Name: "toggleTheme"},
	})

	require.Len(t, invs, 2)
	assert.Equal(t, "1", invs[0].CallID)
	assert.Equal(t, "Notes", invs[0].Arguments["appName"])
	assert.Equal(t, "toggleTheme", invs[1].Name)
}

func TestMatchApp(t *testing.T) {
	name, ok := MatchApp(testApps, "PC")
	assert.True(t, ok)
	assert.Equal(t, "This PC", name)

	_, ok = MatchApp(testApps, "zzz")
	assert.False(t, ok)
}
