package tools

import "sync"

// MockShell is a Shell for testing that records calls.
type MockShell struct {
	mu         sync.Mutex
	Apps       []string
	Opened     []string
	Toggles    int
	Wallpapers int
}

// NewMockShell creates a MockShell that knows the given apps.
func NewMockShell(apps ...string) *MockShell {
	return &MockShell{Apps: apps}
}

// OpenApplication records name and reports whether it is a known app.
func (m *MockShell) OpenApplication(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, app := range m.Apps {
		if app == name {
			m.Opened = append(m.Opened, name)
			return true
		}
	}
	return false
}

// ToggleTheme counts theme toggles.
func (m *MockShell) ToggleTheme() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Toggles++
}

// AdvanceWallpaper counts wallpaper changes.
func (m *MockShell) AdvanceWallpaper() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Wallpapers++
}

// OpenedApps returns a copy of the opened app names.
func (m *MockShell) OpenedApps() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Opened...)
}

var _ Shell = (*MockShell)(nil)
