package pipeline

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// Outcome is the result of one segment. Exactly one of Text and Err is set.
type Outcome struct {
	Ordinal int
	Path    string
	Text    string
	Err     error
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

// FileTranscript holds the outcomes of one input file indexed by ordinal.
type FileTranscript struct {
	SourceFile   string
	Outcomes     []Outcome
	CombinedText string
}

func (t *FileTranscript) Succeeded() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, o := range t.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

func (t *FileTranscript) Failed() []Outcome {
	if t == nil {
		return nil
	}
	var failed []Outcome
	for _, o := range t.Outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}

// joinOutcomes concatenates successful texts in slice order, which is ordinal
// order, with a single space.
func joinOutcomes(outcomes []Outcome) string {
	parts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.OK() {
			parts = append(parts, o.Text)
		}
	}
	return strings.Join(parts, " ")
}

type FileResult struct {
	File       string
	ID         string
	OutputPath string
	Transcript *FileTranscript
	Err        error
	Elapsed    time.Duration
}

func (r FileResult) OK() bool {
	return r.Err == nil
}

// BatchReport is the outcome of one run. Transcripts only holds files that
// were persisted; failed files are listed in Files with their error.
type BatchReport struct {
	RunID        string
	Files        []FileResult
	Transcripts  map[string]string
	CombinedPath string
	Canceled     bool
}

func (r *BatchReport) Succeeded() int {
	n := 0
	for _, f := range r.Files {
		if f.OK() {
			n++
		}
	}
	return n
}

func (r *BatchReport) Failed() []FileResult {
	var failed []FileResult
	for _, f := range r.Files {
		if !f.OK() {
			failed = append(failed, f)
		}
	}
	return failed
}

func (r *BatchReport) WriteSummary(w io.Writer) error {
	var b strings.Builder
	failed := r.Failed()
	fmt.Fprintf(&b, "Transcribed %d of %d file(s)", r.Succeeded(), len(r.Files))
	if len(failed) > 0 {
		fmt.Fprintf(&b, ", %d failed", len(failed))
	}
	b.WriteString("\n")

	for _, f := range r.Files {
		if f.OK() {
			fmt.Fprintf(&b, "  ok      %s -> %s (%d/%d segments)\n", f.ID, f.OutputPath, f.Transcript.Succeeded(), len(f.Transcript.Outcomes))
			continue
		}
		fmt.Fprintf(&b, "  failed  %s: %v\n", f.ID, f.Err)
	}

	if r.CombinedPath != "" {
		fmt.Fprintf(&b, "Combined transcript: %s\n", r.CombinedPath)
	}
	if r.Canceled {
		b.WriteString("Run canceled before all files were processed.\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// FileID names an input file in reports and combined document headings.
func FileID(path string) string {
	return filepath.Base(path)
}
