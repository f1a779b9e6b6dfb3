// Package pcm converts between float audio samples, signed 16-bit
// little-endian PCM and the base64 text encoding used on the wire.
//
// All functions are pure and safe for concurrent use.
package pcm

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"time"
)

// Model sample rates.
const (
	InputSampleRate  = 16000 // microphone audio sent to the agent
	OutputSampleRate = 24000 // synthesized speech received from the agent
)

// ErrMalformedAudio is matched by every *MalformedAudioError.
var ErrMalformedAudio = errors.New("pcm: malformed audio")

// MalformedAudioError reports PCM bytes that cannot be de-interleaved.
type MalformedAudioError struct {
	Length   int
	Channels int
}

func (e *MalformedAudioError) Error() string {
	if e.Channels <= 0 {
		return fmt.Sprintf("pcm: malformed audio: invalid channel count %d", e.Channels)
	}
	return fmt.Sprintf("pcm: malformed audio: %d bytes is not a multiple of %d", e.Length, 2*e.Channels)
}

// Is reports whether target is ErrMalformedAudio.
func (e *MalformedAudioError) Is(target error) bool {
	return target == ErrMalformedAudio
}

// Buffer is decoded audio, one float32 slice per channel.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// Frames returns the number of sample frames per channel.
func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Mono returns the first channel, or the average of all channels.
func (b Buffer) Mono() []float32 {
	switch len(b.Channels) {
	case 0:
		return nil
	case 1:
		return b.Channels[0]
	}
	out := make([]float32, b.Frames())
	for _, ch := range b.Channels {
		for i, s := range ch {
			out[i] += s
		}
	}
	n := float32(len(b.Channels))
	for i := range out {
		out[i] /= n
	}
	return out
}

// FloatToPCM16 encodes samples as signed 16-bit little-endian PCM.
// Samples are clamped to [-1, 1]; negative values scale by 32768 and
// positive values by 32767.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := uint16(floatToInt16(s))
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// PCM16ToBuffer decodes interleaved signed 16-bit little-endian PCM into a
// per-channel float buffer normalised by 32768.
func PCM16ToBuffer(data []byte, channels, sampleRate int) (Buffer, error) {
	if channels <= 0 || len(data)%(2*channels) != 0 {
		return Buffer{}, &MalformedAudioError{Length: len(data), Channels: channels}
	}

	frames := len(data) / (2 * channels)
	buf := Buffer{
		Channels:   make([][]float32, channels),
		SampleRate: sampleRate,
	}
	for ch := range buf.Channels {
		buf.Channels[ch] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			s := int16(uint16(data[off]) | uint16(data[off+1])<<8)
			buf.Channels[ch][i] = float32(s) / 32768
		}
	}
	return buf, nil
}

// EncodeTransport returns the text-safe form of data.
func EncodeTransport(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeTransport reverses EncodeTransport.
func DecodeTransport(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("pcm: decode transport text: %w", err)
	}
	return data, nil
}

// FloatToInt16 converts float samples to int16 using the same scaling as
// FloatToPCM16.
func FloatToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = floatToInt16(s)
	}
	return out
}

// Int16ToFloat converts int16 samples to floats in [-1, 1).
func Int16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

func floatToInt16(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	s = max(-1, min(1, s))
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// RMS returns the root mean square of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Volume maps an RMS level to a display volume in [0, 1].
func Volume(rms, gain float64) float64 {
	return math.Min(rms*gain, 1)
}
