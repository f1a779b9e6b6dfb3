// Package config loads go-meri settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

// Transport kinds.
const (
	TransportGemini = "gemini" // raw websocket
	TransportGenAI  = "genai"  // google.golang.org/genai SDK
)

// Defaults.
const (
	DefaultPort         = "8080"
	DefaultAudioBackend = "mock"
	DefaultRTPListen    = ":5004"
	DefaultRTPDest      = "127.0.0.1:5000"
)

// ErrMissingAPIKey is returned by Validate when no key is configured.
var ErrMissingAPIKey = errors.New("config: GEMINI_API_KEY is required")

// Meri is the process configuration.
type Meri struct {
	APIKey    string
	Model     string
	Voice     string
	Transport string

	AudioBackend string
	RTPListen    string
	RTPDest      string

	OpenTimeout time.Duration

	Port      string
	AccessLog bool
	StaticDir string

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

// Load reads files (".env" when none are given) into the environment,
// ignoring missing ones, then builds the config. Variables already set
// take precedence over file values.
func Load(files ...string) Meri {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}

	return Meri{
		APIKey:    String("", "GEMINI_API_KEY", "GOOGLE_API_KEY", "API_KEY"),
		Model:     String("", "MERI_MODEL"),
		Voice:     String("", "MERI_VOICE"),
		Transport: String(TransportGemini, "MERI_TRANSPORT"),

		AudioBackend: String(DefaultAudioBackend, "MERI_AUDIO"),
		RTPListen:    String(DefaultRTPListen, "MERI_RTP_LISTEN"),
		RTPDest:      String(DefaultRTPDest, "MERI_RTP_DEST"),

		OpenTimeout: Duration("MERI_OPEN_TIMEOUT", 15*time.Second),

		Port:      String(DefaultPort, "PORT"),
		AccessLog: Bool("MERI_ACCESS_LOG", false),
		StaticDir: String("", "MERI_STATIC_DIR"),

		LogLevel:      String("info", "LOG_LEVEL"),
		LogFile:       String("", "LOG_FILE"),
		LogMaxSizeMB:  Int("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: Int("LOG_MAX_BACKUPS", 3),
	}
}

// Validate checks that the configuration is usable.
func (c Meri) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	switch c.Transport {
	case TransportGemini, TransportGenAI:
	default:
		return fmt.Errorf("config: unknown transport %q (want %s or %s)", c.Transport, TransportGemini, TransportGenAI)
	}
	if c.OpenTimeout <= 0 {
		return fmt.Errorf("config: open timeout must be positive, got %v", c.OpenTimeout)
	}
	return nil
}
