package audioio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func testInputConfig() Config {
	cfg := DefaultInputConfig()
	cfg.FrameSize = 160
	return cfg
}

func TestMockSource_StartStop(t *testing.T) {
	src := NewMockSource(testInputConfig(), nil, WithInterval(5*time.Millisecond))
	defer src.Close()

	ctx := context.Background()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Starting again should be a no-op
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Stopping again should be a no-op
	if err := src.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
}

func TestMockSource_Read(t *testing.T) {
	cfg := testInputConfig()
	src := NewMockSource(cfg, nil, WithInterval(5*time.Millisecond))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	frame, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if len(frame.Samples) != cfg.BufferSize() {
		t.Errorf("Expected %d samples, got %d", cfg.BufferSize(), len(frame.Samples))
	}
	if frame.SampleRate != cfg.SampleRate {
		t.Errorf("Expected sample rate %d, got %d", cfg.SampleRate, frame.SampleRate)
	}
	if frame.Duration() != 10*time.Millisecond {
		t.Errorf("Expected 10ms frame, got %v", frame.Duration())
	}
}

func TestMockSource_Script(t *testing.T) {
	src := NewMockSource(testInputConfig(), nil,
		WithInterval(5*time.Millisecond),
		WithScript([]float32{0.25, -0.25}, []float32{0.5}),
	)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	want := []float32{0.25, 0.5, 0}
	for i, w := range want {
		frame, err := src.Read(ctx)
		if err != nil {
			t.Fatalf("Read %d failed: %v", i, err)
		}
		if frame.Samples[0] != w {
			t.Errorf("frame %d: first sample = %v, want %v", i, frame.Samples[0], w)
		}
	}
}

func TestMockSource_SineWave(t *testing.T) {
	src := NewMockSource(testInputConfig(), nil, WithInterval(5*time.Millisecond), WithSineWave(440, 0.5))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	frame, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	hasNonZero := false
	for _, s := range frame.Samples {
		if s != 0 {
			hasNonZero = true
			break
		}
	}
	if !hasNonZero {
		t.Error("Expected non-zero samples from sine wave generator")
	}
}

func TestMockSource_ReadAfterStop(t *testing.T) {
	src := NewMockSource(testInputConfig(), nil, WithInterval(5*time.Millisecond))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	src.Stop()

	// Buffered frames may still drain; EOF must follow.
	for i := 0; i < 20; i++ {
		_, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	t.Fatal("Expected io.EOF after Stop")
}

func TestMockSource_Close(t *testing.T) {
	src := NewMockSource(testInputConfig(), nil)

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !src.Closed() {
		t.Error("Closed() = false after Close")
	}

	if err := src.Start(ctx); err != io.ErrClosedPipe {
		t.Errorf("Expected ErrClosedPipe after close, got: %v", err)
	}

	// Closing again should be a no-op
	if err := src.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}
}

func TestMockSource_Stats(t *testing.T) {
	src := NewMockSource(testInputConfig(), nil, WithInterval(5*time.Millisecond))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := src.Read(ctx); err != nil {
			t.Fatalf("Read failed: %v", err)
		}
	}

	stats := src.Stats()
	if stats.FramesRead < 3 {
		t.Errorf("Expected at least 3 frames read, got %d", stats.FramesRead)
	}
	if stats.Backend != "mock" {
		t.Errorf("Expected backend 'mock', got '%s'", stats.Backend)
	}
	if !stats.Running {
		t.Error("Expected Running = true")
	}
}

func TestManualOutput_ScheduleAndAdvance(t *testing.T) {
	out := NewManualOutput(DefaultOutputConfig())

	// 2400 samples at 24kHz = 100ms
	h1, err := out.Schedule(make([]float32, 2400), 0)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	h2, _ := out.Schedule(make([]float32, 2400), 100*time.Millisecond)

	out.Advance(50 * time.Millisecond)
	select {
	case <-h1.Done():
		t.Fatal("first buffer completed early")
	default:
	}

	out.Advance(50 * time.Millisecond)
	select {
	case <-h1.Done():
	default:
		t.Fatal("first buffer should complete at 100ms")
	}
	select {
	case <-h2.Done():
		t.Fatal("second buffer completed early")
	default:
	}

	entries := out.Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[1].Start != 100*time.Millisecond || entries[1].Duration != 100*time.Millisecond {
		t.Errorf("second entry = %v+%v, want 100ms+100ms", entries[1].Start, entries[1].Duration)
	}
}

func TestManualOutput_PastStartClampsToNow(t *testing.T) {
	out := NewManualOutput(DefaultOutputConfig())
	out.Advance(time.Second)

	out.Schedule(make([]float32, 240), 200*time.Millisecond)

	if got := out.Entries()[0].Start; got != time.Second {
		t.Errorf("Start = %v, want 1s", got)
	}
}

func TestManualOutput_Close(t *testing.T) {
	out := NewManualOutput(DefaultOutputConfig())
	out.Schedule(make([]float32, 2400), 0)

	if err := out.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	e := out.Entries()[0]
	if !e.Stopped() {
		t.Error("entry should be stopped on Close")
	}
	if _, err := out.Schedule(nil, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Schedule after Close = %v, want ErrClosed", err)
	}
}
