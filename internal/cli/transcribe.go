package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fmueller/chunkscribe/internal/config"
	"github.com/fmueller/chunkscribe/internal/download"
	"github.com/fmueller/chunkscribe/internal/metrics"
	"github.com/fmueller/chunkscribe/internal/pipeline"
	"github.com/fmueller/chunkscribe/internal/report"
	"github.com/fmueller/chunkscribe/internal/store"
	"github.com/fmueller/chunkscribe/internal/stt"
)

func (a *appState) runBatch(ctx context.Context) error {
	if err := a.preflight(ctx); err != nil {
		return err
	}

	tempDir, err := a.resolveTempDir()
	if err != nil {
		return err
	}
	if err := store.EnsureDirectories(a.cfg.InputDir, a.cfg.OutputDir, tempDir); err != nil {
		return &config.Error{Field: "directories", Err: err}
	}

	files, err := store.Discover(a.cfg.InputDir)
	if err != nil {
		return &config.Error{Field: "INPUT_DIR", Err: err}
	}
	if len(files) == 0 {
		a.log().Info("no audio files found", zap.String("path", a.cfg.InputDir))
		fmt.Fprintf(a.outWriter(), "No audio files found in %s\n", a.cfg.InputDir)
		return nil
	}

	return a.transcribeFiles(ctx, files, tempDir)
}

func (a *appState) runSingle(ctx context.Context, input string) error {
	if err := a.preflight(ctx); err != nil {
		return err
	}

	tempDir, err := a.resolveTempDir()
	if err != nil {
		return err
	}
	if err := store.EnsureDirectories(a.cfg.OutputDir, tempDir); err != nil {
		return &config.Error{Field: "directories", Err: err}
	}

	path := filepath.Clean(input)
	if download.IsURL(input) {
		path, err = a.fetchInput(ctx, input, tempDir)
		if err != nil {
			return err
		}
		defer func() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				a.log().Warn("failed to remove downloaded input", zap.String("path", path), zap.Error(err))
			}
		}()
	} else if !store.FileExists(path) {
		return fmt.Errorf("audio file not found: %s", input)
	}

	if !store.IsAudioFile(path) {
		a.log().Warn("unrecognized audio extension; letting ffmpeg decide", zap.String("path", path))
	}

	return a.transcribeFiles(ctx, []string{path}, tempDir)
}

func (a *appState) fetchInput(ctx context.Context, rawURL, tempDir string) (string, error) {
	fetch := a.fetchFn
	if fetch == nil {
		fetch = download.Fetch
	}

	path, err := fetch(ctx, download.Options{
		URL:            rawURL,
		Dir:            filepath.Join(tempDir, "downloads"),
		ExpectedSHA256: a.sha256,
		NoProgress:     !a.progressEnabled(),
		Logger:         a.log(),
	})
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	return path, nil
}

func (a *appState) transcribeFiles(ctx context.Context, files []string, tempDir string) error {
	recorder := metrics.New()
	progress := newBatchProgress(a.progressEnabled())
	log := a.log()

	sequencer := &pipeline.Sequencer{
		Splitter:    a.splitter(),
		Transcriber: a.transcriber(),
		Logger:      log,
		Metrics:     recorder,
		Progress:    progress,
		Concurrency: a.cfg.SegmentConcurrency,
		Retries:     a.cfg.TranscribeRetries,
	}
	coordinator := &pipeline.Coordinator{
		Processor: sequencer,
		Store:     store.New(a.cfg.OutputFormat, log),
		Logger:    log,
		Metrics:   recorder,
		Progress:  progress,
	}

	batch, runErr := coordinator.Run(ctx, files, a.cfg.ChunkDuration, a.sttConfig(), a.cfg.OutputDir, tempDir)
	if batch != nil {
		if err := batch.WriteSummary(a.outWriter()); err != nil {
			log.Warn("failed to print summary", zap.Error(err))
		}
		a.writeReport(batch)
	}
	a.writeMetrics(recorder)

	return runErr
}

func (a *appState) sttConfig() stt.Config {
	return stt.Config{
		ModelID:        a.cfg.ModelID,
		LanguageCode:   a.cfg.Language.String(),
		TagAudioEvents: a.cfg.TagAudioEvents,
		Diarize:        a.cfg.Diarize,
	}
}

func (a *appState) writeReport(batch *pipeline.BatchReport) {
	if a.reportFile == "" {
		return
	}
	if err := report.WriteXLSX(a.reportFile, batch); err != nil {
		a.log().Warn("failed to write report", zap.String("path", a.reportFile), zap.Error(err))
		return
	}
	a.log().Info("wrote report", zap.String("path", a.reportFile))
}

func (a *appState) writeMetrics(recorder *metrics.Recorder) {
	if a.metricsFile == "" {
		return
	}
	if err := recorder.WriteTextfile(a.metricsFile); err != nil {
		a.log().Warn("failed to write metrics", zap.Error(err))
	}
}

func (a *appState) preflight(ctx context.Context) error {
	preflightFn := a.preflightFn
	if preflightFn == nil {
		preflightFn = a.ensureReady
	}
	return preflightFn(ctx)
}

func (a *appState) splitter() pipeline.Splitter {
	if a.newSplitterFn == nil {
		return newFFmpegSplitter(a.cfg, a.log())
	}
	return a.newSplitterFn(a.cfg, a.log())
}

func (a *appState) transcriber() stt.Transcriber {
	if a.newTranscriberFn == nil {
		return newElevenLabsTranscriber(a.cfg, a.log())
	}
	return a.newTranscriberFn(a.cfg, a.log())
}
