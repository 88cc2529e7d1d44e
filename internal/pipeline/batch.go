package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fmueller/chunkscribe/internal/metrics"
	"github.com/fmueller/chunkscribe/internal/segment"
	"github.com/fmueller/chunkscribe/internal/store"
	"github.com/fmueller/chunkscribe/internal/stt"
)

type FileProcessor interface {
	ProcessFile(ctx context.Context, inputPath string, chunkSeconds int, cfg stt.Config, tempDir string) (*FileTranscript, error)
}

type ArtifactWriter interface {
	WriteTranscript(outputDir, sourceFile, text string) (string, error)
	WriteCombined(outputDir string, sections []store.Section) (string, error)
	PurgeSegments(tempDir, prefix string) (int, error)
}

// Coordinator runs a batch of input files one after another and combines the
// successful transcripts into one document.
type Coordinator struct {
	Processor FileProcessor
	Store     ArtifactWriter
	Logger    *zap.Logger
	Metrics   *metrics.Recorder
	Progress  Progress
	NewRunID  func() string
}

// Run processes files in the given order. Per-file failures are recorded in
// the report and never stop the batch. The returned error is ErrAllFilesFailed
// when nothing succeeded, the context error when the run was canceled, or a
// combined document write failure.
func (c *Coordinator) Run(ctx context.Context, files []string, chunkSeconds int, cfg stt.Config, outputDir, tempDir string) (*BatchReport, error) {
	report := &BatchReport{
		RunID:       c.newRunID(),
		Transcripts: make(map[string]string),
	}
	log := c.log().With(zap.String("run_id", report.RunID))
	log.Info("starting batch", zap.Int("files", len(files)), zap.Int("chunk_seconds", chunkSeconds))

	for i, file := range files {
		if ctx.Err() != nil {
			break
		}

		c.progress().FileStarted(file, i, len(files))
		result := c.processFile(ctx, log, file, chunkSeconds, cfg, outputDir, tempDir)
		c.progress().FileDone(file, result.Err)

		result.ID = uniqueID(report.Transcripts, file)
		if result.OK() {
			report.Transcripts[result.ID] = result.Transcript.CombinedText
		}
		report.Files = append(report.Files, result)
	}
	report.Canceled = ctx.Err() != nil

	var combineErr error
	if len(report.Transcripts) > 0 {
		path, err := c.Store.WriteCombined(outputDir, sections(report.Transcripts))
		if err != nil {
			combineErr = fmt.Errorf("write combined transcript: %w", err)
			log.Error("combined transcript not written", zap.Error(err))
		} else {
			report.CombinedPath = path
			log.Info("wrote combined transcript", zap.String("path", path), zap.Int("sections", len(report.Transcripts)))
		}
	}

	log.Info("batch finished",
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", len(report.Failed())),
		zap.Bool("canceled", report.Canceled),
	)

	switch {
	case report.Canceled:
		return report, errors.Join(ctx.Err(), combineErr)
	case len(files) > 0 && report.Succeeded() == 0:
		return report, ErrAllFilesFailed
	default:
		return report, combineErr
	}
}

func (c *Coordinator) processFile(ctx context.Context, log *zap.Logger, file string, chunkSeconds int, cfg stt.Config, outputDir, tempDir string) FileResult {
	log = log.With(zap.String("file", FileID(file)))
	started := time.Now()
	result := FileResult{File: file}

	// Segments are purged whatever the outcome, including cancellation.
	defer func() {
		removed, err := c.Store.PurgeSegments(tempDir, segment.PrefixFor(file))
		if err != nil {
			log.Warn("segment cleanup failed", zap.String("path", tempDir), zap.Error(err))
			return
		}
		log.Debug("removed segments", zap.Int("count", removed))
	}()

	transcript, err := c.Processor.ProcessFile(ctx, file, chunkSeconds, cfg, tempDir)
	result.Transcript = transcript
	if err != nil {
		result.Err = err
		result.Elapsed = time.Since(started)
		log.Error("file failed", zap.Duration("elapsed", result.Elapsed), zap.Error(err))
		c.Metrics.FileFinished(metrics.StatusFailure)
		return result
	}

	path, err := c.Store.WriteTranscript(outputDir, file, transcript.CombinedText)
	result.Elapsed = time.Since(started)
	if err != nil {
		result.Err = &FileError{File: file, Stage: StageWrite, Err: err}
		log.Error("transcript not written", zap.Int("chars", len(transcript.CombinedText)), zap.Error(err))
		log.Debug("unsaved transcript", zap.String("text", transcript.CombinedText))
		c.Metrics.FileFinished(metrics.StatusFailure)
		return result
	}

	result.OutputPath = path
	log.Info("wrote transcript", zap.String("path", path), zap.Duration("elapsed", result.Elapsed))
	c.Metrics.FileFinished(metrics.StatusSuccess)
	return result
}

// uniqueID keys a file by its base name, falling back to the full path when
// two inputs share a base name.
func uniqueID(taken map[string]string, file string) string {
	id := FileID(file)
	if _, ok := taken[id]; ok {
		return file
	}
	return id
}

func sections(transcripts map[string]string) []store.Section {
	ids := make([]string, 0, len(transcripts))
	for id := range transcripts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]store.Section, 0, len(ids))
	for _, id := range ids {
		out = append(out, store.Section{ID: id, Text: transcripts[id]})
	}
	return out
}

func (c *Coordinator) newRunID() string {
	if c.NewRunID != nil {
		return c.NewRunID()
	}
	return uuid.NewString()
}

func (c *Coordinator) progress() Progress {
	if c.Progress == nil {
		return noProgress{}
	}
	return c.Progress
}

func (c *Coordinator) log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
