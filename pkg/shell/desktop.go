// Package shell is an in-memory desktop: the installed apps, the active
// app, the theme and the wallpaper rotation. It is what the assistant's
// built-in tools act on.
package shell

import (
	"log/slog"
	"slices"
	"sync"
)

// Theme is the display theme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// State is a snapshot of the desktop.
type State struct {
	Theme          Theme    `json:"theme"`
	WallpaperIndex int      `json:"wallpaper_index"`
	Wallpaper      string   `json:"wallpaper"`
	ActiveApp      *App     `json:"active_app,omitempty"`
	History        []string `json:"history"`
}

// Desktop implements tools.Shell.
type Desktop struct {
	apps       []App
	wallpapers []string
	logger     *slog.Logger

	mu        sync.RWMutex
	theme     Theme
	wallpaper int
	active    *App
	history   []string
	listeners []func(State)
}

// Option configures a Desktop.
type Option func(*Desktop)

// WithApps replaces the app registry.
func WithApps(apps []App) Option {
	return func(d *Desktop) { d.apps = apps }
}

// WithWallpapers replaces the wallpaper rotation.
func WithWallpapers(urls []string) Option {
	return func(d *Desktop) { d.wallpapers = urls }
}

// NewDesktop returns a light-themed desktop on the first wallpaper.
func NewDesktop(logger *slog.Logger, opts ...Option) *Desktop {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Desktop{
		apps:       DefaultApps,
		wallpapers: DefaultWallpapers,
		logger:     logger,
		theme:      ThemeLight,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Apps returns the app registry.
func (d *Desktop) Apps() []App {
	return append([]App(nil), d.apps...)
}

// AppNames returns the registry names in order.
func (d *Desktop) AppNames() []string {
	names := make([]string, len(d.apps))
	for i, a := range d.apps {
		names[i] = a.Name
	}
	return names
}

// OpenApplication makes the app with the given name active.
func (d *Desktop) OpenApplication(name string) bool {
	var app *App
	for i := range d.apps {
		if d.apps[i].Name == name {
			app = &d.apps[i]
			break
		}
	}
	if app == nil {
		return false
	}

	d.mu.Lock()
	d.active = app
	d.history = append(d.history, app.ID)
	state := d.stateLocked()
	d.mu.Unlock()

	d.logger.Info("app opened", "app", app.ID)
	d.notify(state)
	return true
}

// ToggleTheme switches between light and dark.
func (d *Desktop) ToggleTheme() {
	d.mu.Lock()
	if d.theme == ThemeLight {
		d.theme = ThemeDark
	} else {
		d.theme = ThemeLight
	}
	state := d.stateLocked()
	d.mu.Unlock()

	d.logger.Info("theme toggled", "theme", state.Theme)
	d.notify(state)
}

// AdvanceWallpaper moves to the next wallpaper, wrapping around.
func (d *Desktop) AdvanceWallpaper() {
	if len(d.wallpapers) == 0 {
		return
	}

	d.mu.Lock()
	d.wallpaper = (d.wallpaper + 1) % len(d.wallpapers)
	state := d.stateLocked()
	d.mu.Unlock()

	d.logger.Info("wallpaper changed", "index", state.WallpaperIndex)
	d.notify(state)
}

// State returns the current desktop state.
func (d *Desktop) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stateLocked()
}

// OnChange registers fn to be called after every change.
func (d *Desktop) OnChange(fn func(State)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

func (d *Desktop) stateLocked() State {
	s := State{
		Theme:          d.theme,
		WallpaperIndex: d.wallpaper,
		History:        append([]string(nil), d.history...),
	}
	if d.wallpaper < len(d.wallpapers) {
		s.Wallpaper = d.wallpapers[d.wallpaper]
	}
	if d.active != nil {
		app := *d.active
		s.ActiveApp = &app
	}
	return s
}

func (d *Desktop) notify(s State) {
	d.mu.RLock()
	listeners := slices.Clone(d.listeners)
	d.mu.RUnlock()

	for _, fn := range listeners {
		fn(s)
	}
}
