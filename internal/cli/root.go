package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/fmueller/chunkscribe/internal/config"
	"github.com/fmueller/chunkscribe/internal/download"
	"github.com/fmueller/chunkscribe/internal/logging"
	"github.com/fmueller/chunkscribe/internal/pipeline"
	"github.com/fmueller/chunkscribe/internal/platform"
	"github.com/fmueller/chunkscribe/internal/segment"
	"github.com/fmueller/chunkscribe/internal/stt"
	"github.com/fmueller/chunkscribe/internal/version"
)

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool
	envFile    string

	inputDir       string
	outputDir      string
	tempDir        string
	chunkDuration  int
	language       string
	model          string
	format         string
	ffmpegPath     string
	tagAudioEvents bool
	diarize        bool
	concurrency    int
	retries        int

	metricsFile string
	reportFile  string
	sha256      string

	cfg    config.Config
	logger *zap.Logger
	out    io.Writer

	loadConfigFn     func(envFile string, explicit bool) (config.Config, error)
	preflightFn      func(ctx context.Context) error
	ffmpegAvailFn    func(executable string) bool
	newSplitterFn    func(cfg config.Config, logger *zap.Logger) pipeline.Splitter
	newTranscriberFn func(cfg config.Config, logger *zap.Logger) stt.Transcriber
	fetchFn          func(ctx context.Context, opts download.Options) (string, error)
}

func newAppState() *appState {
	app := &appState{
		envFile:       config.DefaultEnvFile,
		inputDir:      "inputs",
		outputDir:     "outputs",
		chunkDuration: config.DefaultChunkDuration,
		language:      config.DefaultLanguage,
		model:         config.DefaultModelID,
		format:        config.FormatMarkdown,
		ffmpegPath:    segment.DefaultExecutable,
		concurrency:   1,
		out:           os.Stdout,
	}
	app.loadConfigFn = config.Load
	app.preflightFn = app.ensureReady
	app.ffmpegAvailFn = ffmpegAvailable
	app.newSplitterFn = newFFmpegSplitter
	app.newTranscriberFn = newElevenLabsTranscriber
	app.fetchFn = download.Fetch
	return app
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(newAppState())
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunkscribe [audio-file|url]",
		Short: "Transcribe long audio files in fixed-length chunks",
		Long: "Splits audio into fixed-length segments with ffmpeg, transcribes each segment with the\n" +
			"ElevenLabs speech-to-text API and joins the results per file. Without an argument every\n" +
			"audio file in the input directory is processed and a combined transcript is written.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Current().String(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.configure(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return app.runBatch(cmd.Context())
			}
			return app.runSingle(cmd.Context(), args[0])
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindDirectoryFlags(cmd, app)
	bindTranscriptionFlags(cmd, app)
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
	cmd.PersistentFlags().StringVar(&app.envFile, "env-file", app.envFile, "Dotenv file to load before reading the environment")
	cmd.PersistentFlags().StringVar(&app.ffmpegPath, "ffmpeg", app.ffmpegPath, "ffmpeg executable (FFMPEG_PATH)")

	cmd.Flags().StringVar(&app.metricsFile, "metrics-file", app.metricsFile, "Write run metrics in Prometheus text format to this file")
	cmd.Flags().StringVar(&app.reportFile, "report", app.reportFile, "Write a per-file summary workbook (.xlsx) to this file")
	cmd.Flags().StringVar(&app.sha256, "sha256", app.sha256, "Expected SHA-256 of a downloaded input")

	cmd.AddCommand(newSplitCmd(app))
	cmd.AddCommand(newCheckCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging (LOG_JSON)")
}

func bindDirectoryFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.inputDir, "input-dir", app.inputDir, "Directory scanned for audio files in batch mode (INPUT_DIR)")
	cmd.PersistentFlags().StringVar(&app.outputDir, "output-dir", app.outputDir, "Directory for transcripts (OUTPUT_DIR)")
	cmd.PersistentFlags().StringVar(&app.tempDir, "temp-dir", app.tempDir, "Scratch directory for segments (TEMP_DIR); defaults to the user cache")
}

func bindTranscriptionFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().IntVar(&app.chunkDuration, "chunk-duration", app.chunkDuration, "Segment length in seconds (CHUNK_DURATION)")
	cmd.PersistentFlags().StringVar(&app.language, "language", app.language, "Language code or name, e.g. en, hy, armenian (LANGUAGE)")
	cmd.PersistentFlags().StringVar(&app.model, "model", app.model, "Speech-to-text model id (ELEVENLABS_MODEL_ID)")
	cmd.PersistentFlags().StringVar(&app.format, "format", app.format, "Output format: md|txt (OUTPUT_FORMAT)")
	cmd.PersistentFlags().BoolVar(&app.tagAudioEvents, "tag-audio-events", app.tagAudioEvents, "Tag non-speech audio events (TAG_AUDIO_EVENTS)")
	cmd.PersistentFlags().BoolVar(&app.diarize, "diarize", app.diarize, "Attempt speaker diarization (DIARIZE)")
	cmd.PersistentFlags().IntVar(&app.concurrency, "concurrency", app.concurrency, "Segments of one file transcribed at once (SEGMENT_CONCURRENCY)")
	cmd.PersistentFlags().IntVar(&app.retries, "retries", app.retries, "Extra attempts for a failed segment (TRANSCRIBE_RETRIES)")
}

// configure loads the environment, lets explicitly set flags win, validates
// the result and builds the logger.
func (a *appState) configure(cmd *cobra.Command) error {
	loadConfig := a.loadConfigFn
	if loadConfig == nil {
		loadConfig = config.Load
	}

	cfg, err := loadConfig(a.envFile, cmd.Flags().Changed("env-file"))
	if err != nil {
		return err
	}
	a.applyFlagOverrides(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Verbose: a.verbose, JSON: a.jsonLogs || cfg.LogJSON})
	if err != nil {
		return &config.Error{Field: "LOG_LEVEL", Err: err}
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *appState) applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("input-dir") {
		cfg.InputDir = a.inputDir
	}
	if changed("output-dir") {
		cfg.OutputDir = a.outputDir
	}
	if changed("temp-dir") {
		cfg.TempDir = a.tempDir
	}
	if changed("chunk-duration") {
		cfg.ChunkDuration = a.chunkDuration
	}
	if changed("language") {
		cfg.Language = config.Language(config.NormalizeLanguage(a.language))
	}
	if changed("model") {
		cfg.ModelID = a.model
	}
	if changed("format") {
		cfg.OutputFormat = a.format
	}
	if changed("ffmpeg") {
		cfg.FFmpegPath = a.ffmpegPath
	}
	if changed("tag-audio-events") {
		cfg.TagAudioEvents = a.tagAudioEvents
	}
	if changed("diarize") {
		cfg.Diarize = a.diarize
	}
	if changed("concurrency") {
		cfg.SegmentConcurrency = a.concurrency
	}
	if changed("retries") {
		cfg.TranscribeRetries = a.retries
	}
}

// ensureReady checks the run-wide preconditions once, before any file is touched.
func (a *appState) ensureReady(_ context.Context) error {
	if err := a.cfg.RequireCredential(); err != nil {
		return err
	}

	available := a.ffmpegAvailFn
	if available == nil {
		available = ffmpegAvailable
	}
	if !available(a.cfg.FFmpegPath) {
		return &config.Error{Field: "FFMPEG_PATH", Err: fmt.Errorf("%s not found; install ffmpeg or set FFMPEG_PATH", a.cfg.FFmpegPath)}
	}
	return nil
}

func (a *appState) resolveTempDir() (string, error) {
	dir, err := platform.ResolveTempDir(a.cfg.TempDir)
	if err != nil {
		return "", &config.Error{Field: "TEMP_DIR", Err: err}
	}
	return dir, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) outWriter() io.Writer {
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}

func ffmpegAvailable(executable string) bool {
	return segment.NewDriver(executable, nil).Available()
}

func newFFmpegSplitter(cfg config.Config, logger *zap.Logger) pipeline.Splitter {
	return segment.NewDriver(cfg.FFmpegPath, logger)
}

func newElevenLabsTranscriber(cfg config.Config, logger *zap.Logger) stt.Transcriber {
	return stt.NewClient(cfg.APIKey,
		stt.WithBaseURL(cfg.BaseURL),
		stt.WithTimeout(cfg.RequestTimeout),
		stt.WithLogger(logger),
	)
}

// IsConfigError reports whether err aborted the run before any file was touched.
func IsConfigError(err error) bool {
	var cfgErr *config.Error
	return errors.As(err, &cfgErr)
}
