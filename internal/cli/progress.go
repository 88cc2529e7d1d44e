package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/fmueller/chunkscribe/internal/pipeline"
)

type stopFunc func()

func startSpinner(enabled bool, description string) stopFunc {
	if !enabled {
		return func() {}
	}

	bar := progressbar.NewOptions(
		-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(80*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				_ = bar.Finish()
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			<-doneCh
		})
	}
}

// batchProgress shows a spinner while a file is split and a segment bar while
// its segments are transcribed.
type batchProgress struct {
	enabled bool

	mu          sync.Mutex
	stopSpinner stopFunc
	bar         *progressbar.ProgressBar
}

var _ pipeline.Progress = (*batchProgress)(nil)

func newBatchProgress(enabled bool) *batchProgress {
	return &batchProgress{enabled: enabled}
}

func (p *batchProgress) FileStarted(file string, index, total int) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.stopSpinner = startSpinner(true, fmt.Sprintf("Splitting %s (%d/%d)", filepath.Base(file), index+1, total))
}

func (p *batchProgress) SegmentsReady(file string, count int) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.bar = progressbar.NewOptions(
		count,
		progressbar.OptionSetDescription("Transcribing "+filepath.Base(file)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *batchProgress) SegmentDone(_ string, _ pipeline.Outcome) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

func (p *batchProgress) FileDone(_ string, _ error) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
}

func (p *batchProgress) stopLocked() {
	if p.stopSpinner != nil {
		p.stopSpinner()
		p.stopSpinner = nil
	}
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}
