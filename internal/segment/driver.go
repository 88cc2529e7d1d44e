package segment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const DefaultExecutable = "ffmpeg"

type Request struct {
	InputPath       string
	OutputDir       string
	DurationSeconds int
	// Prefix defaults to PrefixFor(InputPath).
	Prefix string
}

// Driver cuts audio files into fixed-length segments with the ffmpeg segment
// muxer. Streams are copied, never re-encoded.
type Driver struct {
	Executable string
	Logger     *zap.Logger
}

func NewDriver(executable string, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(executable) == "" {
		executable = DefaultExecutable
	}
	return &Driver{Executable: executable, Logger: logger}
}

func (d *Driver) Available() bool {
	_, err := exec.LookPath(d.executable())
	return err == nil
}

// Split leaves the segment files on disk; removing them is the caller's job.
func (d *Driver) Split(ctx context.Context, req Request) ([]Segment, error) {
	input := req.InputPath
	if req.DurationSeconds <= 0 {
		return nil, &SplitError{Kind: KindInvalidInput, Path: input, Err: fmt.Errorf("segment duration must be positive, got %d", req.DurationSeconds)}
	}

	info, err := os.Stat(input)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &SplitError{Kind: KindNotFound, Path: input, Err: err}
		}
		return nil, &SplitError{Kind: KindIO, Path: input, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &SplitError{Kind: KindInvalidInput, Path: input, Err: errors.New("not a regular file")}
	}

	ext := filepath.Ext(input)
	if ext == "" {
		return nil, &SplitError{Kind: KindInvalidInput, Path: input, Err: errors.New("file has no extension; container format unknown")}
	}

	prefix := req.Prefix
	if prefix == "" {
		prefix = PrefixFor(input)
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, &SplitError{Kind: KindIO, Path: input, Err: fmt.Errorf("create segment directory: %w", err)}
	}

	stale, err := Remove(req.OutputDir, prefix)
	if err != nil {
		return nil, &SplitError{Kind: KindIO, Path: input, Err: err}
	}
	if stale > 0 {
		d.log().Warn("removed stale segments", zap.String("prefix", prefix), zap.Int("count", stale))
	}

	absInput, err := filepath.Abs(input)
	if err != nil {
		return nil, &SplitError{Kind: KindIO, Path: input, Err: err}
	}

	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", absInput,
		"-f", "segment",
		"-segment_time", strconv.Itoa(req.DurationSeconds),
		"-reset_timestamps", "1",
		"-c", "copy",
		"-map", "0:a",
		OutputPattern(req.OutputDir, prefix, ext),
	}

	cmd := exec.CommandContext(ctx, d.executable(), args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	d.log().Debug("running ffmpeg", zap.String("ffmpeg", d.executable()), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &SplitError{Kind: KindToolFailure, Path: input, Err: ctxErr}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &SplitError{
				Kind:     KindToolFailure,
				Path:     input,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
				Err:      err,
			}
		}
		return nil, &SplitError{Kind: KindIO, Path: input, Err: fmt.Errorf("start ffmpeg: %w", err)}
	}

	numbered, err := listNumbered(req.OutputDir, prefix, ext)
	if err != nil {
		return nil, &SplitError{Kind: KindIO, Path: input, Err: err}
	}
	if len(numbered) == 0 {
		return nil, &SplitError{Kind: KindToolFailure, Path: input, Err: errors.New("ffmpeg produced no segments")}
	}

	segments := make([]Segment, 0, len(numbered))
	for i, n := range numbered {
		if n.number != i {
			return nil, &SplitError{Kind: KindIO, Path: input, Err: fmt.Errorf("segment numbering gap: expected %d, found %d", i, n.number)}
		}
		segments = append(segments, Segment{
			Ordinal:         i,
			Path:            n.path,
			SourceFile:      input,
			DurationSeconds: req.DurationSeconds,
		})
	}

	d.log().Debug("split finished", zap.String("file", input), zap.Int("segments", len(segments)))
	return segments, nil
}

func (d *Driver) executable() string {
	if d == nil || strings.TrimSpace(d.Executable) == "" {
		return DefaultExecutable
	}
	return d.Executable
}

func (d *Driver) log() *zap.Logger {
	if d == nil || d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
