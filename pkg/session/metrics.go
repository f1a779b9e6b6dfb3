package session

import (
	"sync"
	"time"

	"github.com/teslashibe/go-meri/pkg/capture"
	"github.com/teslashibe/go-meri/pkg/playback"
)

// TurnMetrics tracks one agent turn. Latencies are measured from the first
// user transcription of the turn.
type TurnMetrics struct {
	StartTime      time.Time `json:"start_time"`
	FirstAudioTime time.Time `json:"first_audio_time"`
	DoneTime       time.Time `json:"done_time"`

	FirstAudio time.Duration `json:"first_audio"`
	Total      time.Duration `json:"total"`

	Chunks      int  `json:"chunks"`
	ToolCalls   int  `json:"tool_calls"`
	Interrupted bool `json:"interrupted"`
}

// Metrics aggregates the counters of one session.
type Metrics struct {
	Capture  capture.Stats  `json:"capture"`
	Playback playback.Stats `json:"playback"`

	Turns        int   `json:"turns"`
	ToolCalls    int64 `json:"tool_calls"`
	ToolFailures int64 `json:"tool_failures"`
	Malformed    int64 `json:"malformed"`

	Current TurnMetrics `json:"current"`
	Average TurnMetrics `json:"average"`
}

const maxTurnHistory = 100

// MetricsCollector records per-turn latency and session counters.
// It is goroutine-safe.
type MetricsCollector struct {
	mu      sync.Mutex
	current TurnMetrics
	history []TurnMetrics

	toolCalls    int64
	toolFailures int64
	malformed    int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]TurnMetrics, 0, maxTurnHistory),
	}
}

// MarkTurnStart records the start of a turn. Only the first call per turn
// counts.
func (m *MetricsCollector) MarkTurnStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.StartTime.IsZero() {
		m.current.StartTime = time.Now()
	}
}

// MarkChunk counts a scheduled audio chunk and records the first one.
func (m *MetricsCollector) MarkChunk() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Chunks++
	if m.current.FirstAudioTime.IsZero() {
		m.current.FirstAudioTime = time.Now()
		if !m.current.StartTime.IsZero() {
			m.current.FirstAudio = m.current.FirstAudioTime.Sub(m.current.StartTime)
		}
	}
}

// MarkToolCall counts a dispatched tool call.
func (m *MetricsCollector) MarkToolCall(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ToolCalls++
	m.toolCalls++
	if failed {
		m.toolFailures++
	}
}

// MarkMalformed counts a dropped audio chunk.
func (m *MetricsCollector) MarkMalformed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.malformed++
}

// MarkTurnDone archives the current turn. A turn with no activity is
// discarded.
func (m *MetricsCollector) MarkTurnDone(interrupted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.StartTime.IsZero() && m.current.Chunks == 0 && m.current.ToolCalls == 0 {
		return
	}

	m.current.DoneTime = time.Now()
	m.current.Interrupted = interrupted
	if !m.current.StartTime.IsZero() {
		m.current.Total = m.current.DoneTime.Sub(m.current.StartTime)
	}

	m.history = append(m.history, m.current)
	if len(m.history) > maxTurnHistory {
		m.history = m.history[1:]
	}
	m.current = TurnMetrics{}
}

// Current returns the in-progress turn.
func (m *MetricsCollector) Current() TurnMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Turns returns the number of archived turns.
func (m *MetricsCollector) Turns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Average returns average latencies over recent turns that measured them.
func (m *MetricsCollector) Average() TurnMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var avg TurnMetrics
	var n time.Duration
	for _, h := range m.history {
		if h.StartTime.IsZero() {
			continue
		}
		avg.FirstAudio += h.FirstAudio
		avg.Total += h.Total
		avg.Chunks += h.Chunks
		avg.ToolCalls += h.ToolCalls
		n++
	}
	if n == 0 {
		return TurnMetrics{}
	}

	avg.FirstAudio /= n
	avg.Total /= n
	avg.Chunks /= int(n)
	avg.ToolCalls /= int(n)
	return avg
}

// counters returns the session-wide counters.
func (m *MetricsCollector) counters() (toolCalls, toolFailures, malformed int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toolCalls, m.toolFailures, m.malformed
}

// FormatLatency returns a one-line latency summary.
func (t TurnMetrics) FormatLatency() string {
	return formatDuration(t.FirstAudio) + " FIRST AUDIO | " + formatDuration(t.Total) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
