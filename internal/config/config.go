package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DefaultChunkDuration = 30
	DefaultModelID       = "scribe_v1"
	DefaultLanguage      = "en"
	DefaultEnvFile       = ".env"

	FormatMarkdown = "md"
	FormatText     = "txt"
)

var ErrMissingCredential = errors.New("ELEVENLABS_API_KEY is not set")

// Error is a configuration problem that aborts the run before any file is touched.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config is built once at process start and handed to the pipeline by value.
type Config struct {
	APIKey  string `envconfig:"ELEVENLABS_API_KEY"`
	BaseURL string `envconfig:"ELEVENLABS_BASE_URL" default:"https://api.elevenlabs.io"`
	ModelID string `envconfig:"ELEVENLABS_MODEL_ID" default:"scribe_v1"`

	Language       Language `envconfig:"LANGUAGE" default:"en"`
	TagAudioEvents bool     `envconfig:"TAG_AUDIO_EVENTS" default:"false"`
	Diarize        bool     `envconfig:"DIARIZE" default:"false"`

	InputDir  string `envconfig:"INPUT_DIR" default:"inputs"`
	OutputDir string `envconfig:"OUTPUT_DIR" default:"outputs"`
	TempDir   string `envconfig:"TEMP_DIR"`

	ChunkDuration int    `envconfig:"CHUNK_DURATION" default:"30"` // seconds
	OutputFormat  string `envconfig:"OUTPUT_FORMAT" default:"md"`
	FFmpegPath    string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`

	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5m"`
	TranscribeRetries  int           `envconfig:"TRANSCRIBE_RETRIES" default:"0"`
	SegmentConcurrency int           `envconfig:"SEGMENT_CONCURRENCY" default:"1"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogJSON  bool   `envconfig:"LOG_JSON" default:"false"`
}

// Load reads envFile (a missing file is fine unless it was asked for
// explicitly) and then the process environment.
func Load(envFile string, explicit bool) (Config, error) {
	if strings.TrimSpace(envFile) == "" {
		envFile = DefaultEnvFile
	}

	if err := godotenv.Load(envFile); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, &Error{Field: "env file", Err: fmt.Errorf("load %s: %w", envFile, err)}
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, &Error{Err: err}
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.ChunkDuration <= 0 {
		return &Error{Field: "CHUNK_DURATION", Err: fmt.Errorf("must be a positive number of seconds, got %d", c.ChunkDuration)}
	}

	switch c.OutputFormat {
	case FormatMarkdown, FormatText:
	default:
		return &Error{Field: "OUTPUT_FORMAT", Err: fmt.Errorf("must be %q or %q, got %q", FormatMarkdown, FormatText, c.OutputFormat)}
	}

	if c.SegmentConcurrency < 1 {
		return &Error{Field: "SEGMENT_CONCURRENCY", Err: fmt.Errorf("must be at least 1, got %d", c.SegmentConcurrency)}
	}
	if c.TranscribeRetries < 0 {
		return &Error{Field: "TRANSCRIBE_RETRIES", Err: fmt.Errorf("must not be negative, got %d", c.TranscribeRetries)}
	}
	if c.RequestTimeout < 0 {
		return &Error{Field: "REQUEST_TIMEOUT", Err: fmt.Errorf("must not be negative, got %s", c.RequestTimeout)}
	}
	if strings.TrimSpace(c.InputDir) == "" {
		return &Error{Field: "INPUT_DIR", Err: errors.New("must not be empty")}
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return &Error{Field: "OUTPUT_DIR", Err: errors.New("must not be empty")}
	}
	if strings.TrimSpace(c.FFmpegPath) == "" {
		return &Error{Field: "FFMPEG_PATH", Err: errors.New("must not be empty")}
	}

	return nil
}

// RequireCredential is checked once before any transcription work starts.
func (c Config) RequireCredential() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return &Error{Field: "ELEVENLABS_API_KEY", Err: ErrMissingCredential}
	}
	return nil
}

// Language is a normalized language code. Common language names map to their
// ISO 639-1 code, ISO-looking tags keep their primary subtag, and anything else
// is handed to the service unchanged.
type Language string

var isoTagPattern = regexp.MustCompile(`^([a-z]{2,3})(-[a-z0-9]{2,4})?$`)

var languageNames = map[string]string{
	"english":    "en",
	"armenian":   "hy",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"russian":    "ru",
	"japanese":   "ja",
	"chinese":    "zh",
}

func NormalizeLanguage(value string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return DefaultLanguage
	}
	if code, ok := languageNames[trimmed]; ok {
		return code
	}
	if m := isoTagPattern.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return trimmed
}

func (l *Language) Decode(value string) error {
	*l = Language(NormalizeLanguage(value))
	return nil
}

func (l Language) String() string {
	return string(l)
}
