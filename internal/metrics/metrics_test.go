package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	t.Parallel()

	r := New()
	r.SegmentFinished(StatusSuccess, time.Second)
	r.SegmentFinished(StatusSuccess, 2*time.Second)
	r.SegmentFinished(StatusFailure, time.Second)
	r.SegmentFinished(StatusSkipped, 0)
	r.FileFinished(StatusSuccess)
	r.FileFinished(StatusFailure)
	r.FileFinished(StatusFailure)
	r.SplitFinished(300 * time.Millisecond)
	r.Retried()

	require.Equal(t, 2.0, testutil.ToFloat64(r.segments.WithLabelValues(StatusSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(r.segments.WithLabelValues(StatusFailure)))
	require.Equal(t, 1.0, testutil.ToFloat64(r.segments.WithLabelValues(StatusSkipped)))
	require.Equal(t, 1.0, testutil.ToFloat64(r.files.WithLabelValues(StatusSuccess)))
	require.Equal(t, 2.0, testutil.ToFloat64(r.files.WithLabelValues(StatusFailure)))
	require.Equal(t, 1.0, testutil.ToFloat64(r.retries))

	families, err := r.registry.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if mf.GetName() != "chunkscribe_transcription_latency_seconds" {
			continue
		}
		found = true
		require.Len(t, mf.GetMetric(), 1)
		require.EqualValues(t, 3, mf.GetMetric()[0].GetHistogram().GetSampleCount())
	}
	require.True(t, found)
}

func TestNilRecorderIsNoop(t *testing.T) {
	t.Parallel()

	var r *Recorder
	r.SegmentFinished(StatusSuccess, time.Second)
	r.FileFinished(StatusFailure)
	r.SplitFinished(time.Second)
	r.Retried()
	require.NotNil(t, r.Gatherer())
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	r := New()
	r.FileFinished(StatusSuccess)

	path := filepath.Join(t.TempDir(), "chunkscribe.prom")
	require.NoError(t, r.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), `chunkscribe_files_total{status="success"} 1`)
}
