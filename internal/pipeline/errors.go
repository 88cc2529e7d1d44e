package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
)

var (
	ErrNoSegmentsTranscribed = errors.New("no segments transcribed")
	ErrAllFilesFailed        = errors.New("all files failed")
	errEmptyText             = errors.New("empty transcript")
)

type Stage string

const (
	StageSplit      Stage = "split"
	StageRead       Stage = "read"
	StageTranscribe Stage = "transcribe"
	StageWrite      Stage = "write"
)

// SegmentError is a failure confined to one segment. It never aborts the file.
type SegmentError struct {
	Ordinal int
	Path    string
	Stage   Stage
	Err     error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("%s segment %d: %v", e.Stage, e.Ordinal, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

// FileError is a failure confined to one input file. It never aborts the batch.
type FileError struct {
	File  string
	Stage Stage
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, filepath.Base(e.File), e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
