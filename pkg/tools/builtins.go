package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/teslashibe/go-meri/pkg/protocol"
)

// Shell is the desktop the built-in tools act on. Calls are synchronous and
// do not fail.
type Shell interface {
	// OpenApplication opens the app with the exact registry name and
	// reports whether it exists.
	OpenApplication(name string) bool
	ToggleTheme()
	AdvanceWallpaper()
}

// MatchApp returns the first name containing query, case-insensitively.
func MatchApp(names []string, query string) (string, bool) {
	q := strings.ToLower(query)
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), q) {
			return name, true
		}
	}
	return "", false
}

// Builtins returns openApp, toggleTheme and changeWallpaper bound to shell.
// apps is the registry openApp matches against.
func Builtins(shell Shell, apps []string) []Tool {
	return []Tool{
		{
			Name:        "openApp",
			Description: "Opens an application by its name.",
			Parameters: &protocol.Schema{
				Type: protocol.TypeObject,
				Properties: map[string]*protocol.Schema{
					"appName": {
						Type:        protocol.TypeString,
						Description: "The name of the app to open (e.g. 'Calculator', 'Settings', 'Browser').",
					},
				},
				Required: []string{"appName"},
			},
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				query, _ := args["appName"].(string)
				if query == "" {
					return "", errors.New("appName is required")
				}

				name, ok := MatchApp(apps, query)
				if !ok || !shell.OpenApplication(name) {
					return fmt.Sprintf("Could not find app %s", query), nil
				}
				return fmt.Sprintf("Opened %s", name), nil
			},
		},
		{
			Name:        "toggleTheme",
			Description: "Switches the system theme between light and dark mode.",
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				shell.ToggleTheme()
				return "Theme toggled", nil
			},
		},
		{
			Name:        "changeWallpaper",
			Description: "Changes the desktop background wallpaper to the next available one.",
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				shell.AdvanceWallpaper()
				return "Wallpaper changed", nil
			},
		},
	}
}
