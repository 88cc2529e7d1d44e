package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/fmueller/chunkscribe/internal/metrics"
	"github.com/fmueller/chunkscribe/internal/segment"
	"github.com/fmueller/chunkscribe/internal/stt"
)

type Splitter interface {
	Split(ctx context.Context, req segment.Request) ([]segment.Segment, error)
}

// Progress receives pipeline events for display. SegmentDone may be called
// from several goroutines when segments are transcribed concurrently.
type Progress interface {
	FileStarted(file string, index, total int)
	SegmentsReady(file string, count int)
	SegmentDone(file string, outcome Outcome)
	FileDone(file string, err error)
}

type noProgress struct{}

func (noProgress) FileStarted(string, int, int) {}
func (noProgress) SegmentsReady(string, int)    {}
func (noProgress) SegmentDone(string, Outcome)  {}
func (noProgress) FileDone(string, error)       {}

// Sequencer turns one input file into a FileTranscript: split, transcribe each
// segment, join the successful texts in ordinal order.
type Sequencer struct {
	Splitter    Splitter
	Transcriber stt.Transcriber
	Logger      *zap.Logger
	Metrics     *metrics.Recorder
	Progress    Progress

	// Concurrency above 1 transcribes that many segments of a file at once.
	Concurrency int
	// Retries is the number of extra attempts for a retryable transcription failure.
	Retries    int
	NewBackOff func() backoff.BackOff

	ReadFile func(string) ([]byte, error)
}

// ProcessFile returns the transcript together with ErrNoSegmentsTranscribed
// when every segment failed, so callers can still report the per-segment
// reasons.
func (s *Sequencer) ProcessFile(ctx context.Context, inputPath string, chunkSeconds int, cfg stt.Config, tempDir string) (*FileTranscript, error) {
	log := s.log().With(zap.String("file", FileID(inputPath)))

	started := time.Now()
	segments, err := s.Splitter.Split(ctx, segment.Request{
		InputPath:       inputPath,
		OutputDir:       tempDir,
		DurationSeconds: chunkSeconds,
		Prefix:          segment.PrefixFor(inputPath),
	})
	s.Metrics.SplitFinished(time.Since(started))
	if err != nil {
		return nil, &FileError{File: inputPath, Stage: StageSplit, Err: err}
	}
	for i, seg := range segments {
		if seg.Ordinal != i {
			return nil, &FileError{File: inputPath, Stage: StageSplit, Err: fmt.Errorf("segment %s has ordinal %d at position %d", seg.Path, seg.Ordinal, i)}
		}
	}

	log.Info("split audio", zap.Int("segments", len(segments)), zap.Duration("elapsed", time.Since(started)))
	s.progress().SegmentsReady(inputPath, len(segments))

	outcomes := make([]Outcome, len(segments))
	if s.Concurrency > 1 {
		s.transcribeConcurrently(ctx, log, inputPath, segments, cfg, outcomes)
	} else {
		for i, seg := range segments {
			if ctx.Err() != nil {
				break
			}
			outcomes[i] = s.transcribeSegment(ctx, log, seg, cfg)
			s.progress().SegmentDone(inputPath, outcomes[i])
		}
	}

	// A file interrupted midway is never persisted.
	if err := ctx.Err(); err != nil {
		return nil, &FileError{File: inputPath, Stage: StageTranscribe, Err: err}
	}

	transcript := &FileTranscript{
		SourceFile:   inputPath,
		Outcomes:     outcomes,
		CombinedText: joinOutcomes(outcomes),
	}
	if transcript.Succeeded() == 0 {
		return transcript, &FileError{File: inputPath, Stage: StageTranscribe, Err: ErrNoSegmentsTranscribed}
	}

	log.Info("transcribed file",
		zap.Int("segments", len(outcomes)),
		zap.Int("failed", len(transcript.Failed())),
		zap.Duration("elapsed", time.Since(started)),
	)
	return transcript, nil
}

// transcribeConcurrently writes each outcome into the slot of its ordinal, so
// completion order never affects the joined text.
func (s *Sequencer) transcribeConcurrently(ctx context.Context, log *zap.Logger, inputPath string, segments []segment.Segment, cfg stt.Config, outcomes []Outcome) {
	sem := make(chan struct{}, s.Concurrency)
	var wg sync.WaitGroup

	for i, seg := range segments {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}

		wg.Add(1)
		go func(i int, seg segment.Segment) {
			defer wg.Done()
			defer func() { <-sem }()

			outcomes[i] = s.transcribeSegment(ctx, log, seg, cfg)
			s.progress().SegmentDone(inputPath, outcomes[i])
		}(i, seg)
	}

	wg.Wait()
}

func (s *Sequencer) transcribeSegment(ctx context.Context, log *zap.Logger, seg segment.Segment, cfg stt.Config) Outcome {
	log = log.With(zap.Int("ordinal", seg.Ordinal), zap.String("segment", seg.Path))
	outcome := Outcome{Ordinal: seg.Ordinal, Path: seg.Path}

	audio, err := s.readFile(seg.Path)
	if err != nil {
		outcome.Err = &SegmentError{Ordinal: seg.Ordinal, Path: seg.Path, Stage: StageRead, Err: err}
		log.Warn("skipping unreadable segment", zap.Error(err))
		s.Metrics.SegmentFinished(metrics.StatusSkipped, 0)
		return outcome
	}

	started := time.Now()
	text, err := s.transcribeWithRetry(ctx, log, audio, stt.MIMEType(seg.Path), cfg)
	elapsed := time.Since(started)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyText
	}
	if err != nil {
		outcome.Err = &SegmentError{Ordinal: seg.Ordinal, Path: seg.Path, Stage: StageTranscribe, Err: err}
		log.Warn("segment transcription failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		s.Metrics.SegmentFinished(metrics.StatusFailure, elapsed)
		return outcome
	}

	outcome.Text = strings.TrimSpace(text)
	log.Debug("segment transcribed", zap.Int("chars", len(outcome.Text)), zap.Duration("elapsed", elapsed))
	s.Metrics.SegmentFinished(metrics.StatusSuccess, elapsed)
	return outcome
}

func (s *Sequencer) transcribeWithRetry(ctx context.Context, log *zap.Logger, audio []byte, mimeType string, cfg stt.Config) (string, error) {
	if s.Retries <= 0 {
		return s.Transcriber.Transcribe(ctx, audio, mimeType, cfg)
	}

	var text string
	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			s.Metrics.Retried()
		}

		result, err := s.Transcriber.Transcribe(ctx, audio, mimeType, cfg)
		if err != nil {
			if !stt.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		text = result
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.Retries)), ctx)
	notify := func(err error, wait time.Duration) {
		log.Info("retrying segment", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return "", err
	}
	return text, nil
}

func (s *Sequencer) newBackOff() backoff.BackOff {
	if s.NewBackOff != nil {
		return s.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func (s *Sequencer) readFile(path string) ([]byte, error) {
	if s.ReadFile != nil {
		return s.ReadFile(path)
	}
	return os.ReadFile(path)
}

func (s *Sequencer) progress() Progress {
	if s.Progress == nil {
		return noProgress{}
	}
	return s.Progress
}

func (s *Sequencer) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
