package audioio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingWriter struct {
	mu     sync.Mutex
	frames [][]int16
	closed bool
}

func (w *recordingWriter) WriteFrame(ctx context.Context, samples []int16) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, samples)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func testOutputConfig() Config {
	cfg := DefaultOutputConfig()
	cfg.FrameSize = 4
	return cfg
}

func TestMixer_RenderSumsVoices(t *testing.T) {
	m := NewMixer(testOutputConfig(), "test", nil, nil)
	defer m.Close()

	m.Schedule([]float32{0.5, 0.5, 0.5, 0.5}, 0)
	m.Schedule([]float32{0.25, 0.25}, 0)

	frame := m.Render()
	want := []int16{24575, 24575, 16383, 16383}
	for i := range want {
		if frame[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, frame[i], want[i])
		}
	}
}

func TestMixer_GaplessAcrossPeriods(t *testing.T) {
	m := NewMixer(testOutputConfig(), "test", nil, nil)
	defer m.Close()

	// Second voice starts exactly where the first ends, mid-period.
	a := []float32{0.5, 0.5, 0.5, 0.5, 0.5, 0.5}
	ha, _ := m.Schedule(a, 0)
	at := time.Duration(len(a)) * time.Second / 24000
	hb, _ := m.Schedule([]float32{-0.5, -0.5}, at)

	first := m.Render()
	second := m.Render()

	for i, s := range first {
		if s != 16383 {
			t.Errorf("first[%d] = %d, want 16383", i, s)
		}
	}
	want := []int16{16383, 16383, -16384, -16384}
	for i := range want {
		if second[i] != want[i] {
			t.Errorf("second[%d] = %d, want %d", i, second[i], want[i])
		}
	}

	for _, h := range []Handle{ha, hb} {
		select {
		case <-h.Done():
		default:
			t.Error("voice should have completed")
		}
	}
}

func TestMixer_ScheduleInPastStartsNow(t *testing.T) {
	m := NewMixer(testOutputConfig(), "test", nil, nil)
	defer m.Close()

	m.Render()
	m.Render()
	m.Schedule([]float32{1, 1, 1, 1}, 0)

	frame := m.Render()
	if frame[0] != 32767 {
		t.Errorf("late voice should play immediately, got %d", frame[0])
	}
	if m.Now() != 12*time.Second/24000 {
		t.Errorf("Now() = %v", m.Now())
	}
}

func TestMixer_StopVoice(t *testing.T) {
	m := NewMixer(testOutputConfig(), "test", nil, nil)
	defer m.Close()

	h, _ := m.Schedule([]float32{1, 1, 1, 1, 1, 1, 1, 1}, 0)
	m.Render()
	h.Stop()

	select {
	case <-h.Done():
	default:
		t.Fatal("Done should close on Stop")
	}

	frame := m.Render()
	for i, s := range frame {
		if s != 0 {
			t.Errorf("sample %d = %d after stop, want 0", i, s)
		}
	}

	stats := m.Stats()
	if stats.Stopped != 1 || stats.Active != 0 {
		t.Errorf("stats = %+v", stats)
	}

	// Stopping twice is harmless.
	h.Stop()
	if m.Stats().Stopped != 1 {
		t.Error("second Stop should not count")
	}
}

func TestMixer_EmptyBufferCompletesImmediately(t *testing.T) {
	m := NewMixer(testOutputConfig(), "test", nil, nil)
	defer m.Close()

	h, err := m.Schedule(nil, 0)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	select {
	case <-h.Done():
	default:
		t.Error("empty buffer should complete immediately")
	}
}

func TestMixer_RenderLoopWritesFrames(t *testing.T) {
	cfg := DefaultOutputConfig()
	cfg.BufferDuration = 5 * time.Millisecond
	w := &recordingWriter{}
	m := NewMixer(cfg, "test", w, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.frames) == 0 {
		t.Error("expected rendered frames")
	}
	if !w.closed {
		t.Error("writer should be closed")
	}
}

func TestMixer_Close(t *testing.T) {
	m := NewMixer(testOutputConfig(), "test", nil, nil)

	h, _ := m.Schedule([]float32{1, 1, 1, 1}, 0)
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case <-h.Done():
	default:
		t.Error("voices should stop on Close")
	}
	if _, err := m.Schedule([]float32{1}, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Schedule after Close = %v, want ErrClosed", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestFactory_MockBackend(t *testing.T) {
	f := NewFactory(BackendMock, nil)
	ctx := context.Background()

	src, err := f.OpenSource(ctx)
	if err != nil {
		t.Fatalf("OpenSource failed: %v", err)
	}
	defer src.Close()
	if src.Config().FrameSize != 4096 || src.Config().SampleRate != 16000 {
		t.Errorf("unexpected input config: %+v", src.Config())
	}

	out, err := f.OpenOutput(ctx)
	if err != nil {
		t.Fatalf("OpenOutput failed: %v", err)
	}
	defer out.Close()
	if out.Config().SampleRate != 24000 {
		t.Errorf("unexpected output sample rate: %d", out.Config().SampleRate)
	}
}

func TestFactory_UnknownBackend(t *testing.T) {
	f := NewFactory(Backend("nope"), nil)

	_, err := f.OpenSource(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}

	var devErr *DeviceAcquisitionError
	if !errors.As(err, &devErr) || devErr.Role != RoleMicrophone {
		t.Errorf("expected microphone DeviceAcquisitionError, got %v", err)
	}

	_, err = f.OpenOutput(context.Background())
	if !errors.As(err, &devErr) || devErr.Role != RoleSpeaker {
		t.Errorf("expected speaker DeviceAcquisitionError, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"zero rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"zero channels", func(c *Config) { c.Channels = 0 }, true},
		{"no frame size or duration", func(c *Config) { c.FrameSize = 0 }, true},
		{"rtp without device", func(c *Config) { c.Backend = BackendRTP }, true},
		{"rtp with device", func(c *Config) { c.Backend = BackendRTP; c.Device = ":5004" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultInputConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_SizesFromReturnedValue(t *testing.T) {
	src := NewMockSource(DefaultInputConfig(), nil)
	if got := src.Config().BufferSize(); got != 4096 {
		t.Errorf("BufferSize() = %d, want 4096", got)
	}
	if got := DefaultOutputConfig().BufferSize(); got != 480 {
		t.Errorf("output BufferSize() = %d, want 480", got)
	}
	if got := DefaultOutputConfig().Period(); got != 20*time.Millisecond {
		t.Errorf("output Period() = %v, want 20ms", got)
	}
}

func TestConfig_FramesRoundTrip(t *testing.T) {
	cfg := DefaultOutputConfig()
	for _, n := range []int64{0, 1, 999, 1000, 1001, 24000, 123457, 86_400 * 24000} {
		if got := cfg.Frames(cfg.FrameTime(n)); got != n {
			t.Errorf("Frames(FrameTime(%d)) = %d", n, got)
		}
	}
	if got := cfg.Frames(-time.Second); got != 0 {
		t.Errorf("Frames(-1s) = %d, want 0", got)
	}
}

func TestMixer_ScheduleAtFrameTime(t *testing.T) {
	cfg := testOutputConfig()
	m := NewMixer(cfg, "test", nil, nil)
	defer m.Close()

	// 7 frames at 24kHz is 291666.67ns; the truncated position must still
	// land on frame 7.
	m.Schedule([]float32{0.5}, cfg.FrameTime(7))

	var out []int16
	for range 3 {
		out = append(out, m.Render()...)
	}
	for i, v := range out {
		if want := i == 7; (v != 0) != want {
			t.Errorf("sample %d = %d", i, v)
		}
	}
}

func TestAvailableBackends_IncludesMock(t *testing.T) {
	backends := AvailableBackends()
	if len(backends) == 0 || backends[0] != BackendMock {
		t.Errorf("AvailableBackends() = %v", backends)
	}
}
