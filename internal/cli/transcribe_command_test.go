package cli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/fmueller/chunkscribe/internal/config"
	"github.com/fmueller/chunkscribe/internal/download"
	"github.com/fmueller/chunkscribe/internal/pipeline"
)

func TestBatchTranscribesInputDirectory(t *testing.T) {
	t.Parallel()

	stt := newFakeSTT(t)
	ws := newWorkspace(t)
	ws.cfg.BaseURL = stt.server.URL
	ws.addInput(t, "b.wav", "a.mp3", "notes.pdf")

	metricsFile := filepath.Join(t.TempDir(), "run.prom")
	reportFile := filepath.Join(t.TempDir(), "run.xlsx")

	stdout, _, err := runCommand(t, ws.app(), []string{"--no-progress", "--metrics-file", metricsFile, "--report", reportFile})
	require.NoError(t, err)
	require.Contains(t, stdout, "Transcribed 2 of 2 file(s)")

	// Segments are joined in suffix order although ffmpeg wrote 001 first.
	a := ws.read(t, "a.md")
	require.True(t, strings.HasPrefix(a, "# Transcription: A\n\n*Transcribed on "))
	require.Contains(t, a, "heard chunk_a_000 heard chunk_a_001\n")

	combined := ws.read(t, "combined_transcription.md")
	require.Less(t, strings.Index(combined, "## a.mp3"), strings.Index(combined, "## b.wav"))
	require.Contains(t, combined, "## b.wav\n\nheard chunk_b_000 heard chunk_b_001\n")
	require.NoFileExists(t, filepath.Join(ws.outputDir, "notes.md"))

	require.Empty(t, ws.leftoverSegments(t))
	require.Len(t, stt.recorded(), 4)
	for _, req := range stt.recorded() {
		require.Equal(t, "en", req.language)
		require.Equal(t, config.DefaultModelID, req.model)
	}

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	require.Contains(t, string(metrics), `chunkscribe_segments_total{status="success"} 4`)

	wb, err := excelize.OpenFile(reportFile)
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("Files")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "a.mp3", rows[1][0])
	require.Equal(t, "b.wav", rows[2][0])
}

func TestBatchWithoutAudioFiles(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	ws.addInput(t, "slides.pdf", "photo.jpg")

	stdout, _, err := runCommand(t, ws.app(), []string{"--no-progress"})
	require.NoError(t, err)
	require.Contains(t, stdout, "No audio files found in "+ws.inputDir)
	require.NoFileExists(t, filepath.Join(ws.outputDir, "combined_transcription.md"))
}

func TestBatchContinuesPastFailedFile(t *testing.T) {
	t.Parallel()

	stt := newFakeSTT(t)
	ws := newWorkspace(t)
	ws.cfg.BaseURL = stt.server.URL
	ws.addInput(t, "a.mp3", "fail.mp3")

	stdout, _, err := runCommand(t, ws.app(), []string{"--no-progress"})
	require.NoError(t, err)
	require.Contains(t, stdout, "Transcribed 1 of 2 file(s), 1 failed")
	require.Contains(t, stdout, "failed  fail.mp3: transcribe fail.mp3: no segments transcribed")

	combined := ws.read(t, "combined_transcription.md")
	require.NotContains(t, combined, "fail.mp3")
	require.NoFileExists(t, filepath.Join(ws.outputDir, "fail.md"))
	require.Empty(t, ws.leftoverSegments(t))
}

func TestBatchAllFilesFailedIsAnError(t *testing.T) {
	t.Parallel()

	stt := newFakeSTT(t)
	ws := newWorkspace(t)
	ws.cfg.BaseURL = stt.server.URL
	ws.addInput(t, "fail.mp3")

	stdout, _, err := runCommand(t, ws.app(), []string{"--no-progress"})
	require.ErrorIs(t, err, pipeline.ErrAllFilesFailed)
	require.Contains(t, stdout, "Transcribed 0 of 1 file(s), 1 failed")
	require.NoFileExists(t, filepath.Join(ws.outputDir, "combined_transcription.md"))
	require.Empty(t, ws.leftoverSegments(t))
}

func TestSingleFileTextFormat(t *testing.T) {
	t.Parallel()

	stt := newFakeSTT(t)
	ws := newWorkspace(t, "000", "002", "001")
	ws.cfg.BaseURL = stt.server.URL
	other := filepath.Join(t.TempDir(), "lecture.m4a")
	require.NoError(t, os.WriteFile(other, []byte("ID3"), 0o644))

	stdout, _, err := runCommand(t, ws.app(), []string{"--no-progress", "--format", "txt", "--language", "Armenian", "--chunk-duration", "10", other})
	require.NoError(t, err)
	require.Contains(t, stdout, "Transcribed 1 of 1 file(s)")

	require.Equal(t, "heard chunk_lecture_000 heard chunk_lecture_001 heard chunk_lecture_002\n", ws.read(t, "lecture.txt"))
	require.Equal(t, "lecture.m4a\n===========\n\nheard chunk_lecture_000 heard chunk_lecture_001 heard chunk_lecture_002\n", ws.read(t, "combined_transcription.txt"))

	for _, req := range stt.recorded() {
		require.Equal(t, "hy", req.language)
	}

	args, err := os.ReadFile(ws.argsFile)
	require.NoError(t, err)
	require.Contains(t, string(args), "-segment_time\n10\n")
}

func TestSingleFileConcurrentWithRetries(t *testing.T) {
	t.Parallel()

	stt := newFakeSTT(t)
	ws := newWorkspace(t, "000", "001", "002", "003")
	ws.cfg.BaseURL = stt.server.URL
	input := ws.addInput(t, "talk.flac")[0]

	_, _, err := runCommand(t, ws.app(), []string{"--no-progress", "--concurrency", "3", "--retries", "1", input})
	require.NoError(t, err)
	require.Contains(t, ws.read(t, "talk.md"), "heard chunk_talk_000 heard chunk_talk_001 heard chunk_talk_002 heard chunk_talk_003\n")
}

func TestSingleFileMissing(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	_, _, err := runCommand(t, ws.app(), []string{"--no-progress", filepath.Join(ws.inputDir, "nope.mp3")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "audio file not found")
}

func TestSingleFileFromURL(t *testing.T) {
	t.Parallel()

	payload := []byte("remote-audio")
	sum := sha256.Sum256(payload)
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer media.Close()

	stt := newFakeSTT(t)
	ws := newWorkspace(t)
	ws.cfg.BaseURL = stt.server.URL

	stdout, _, err := runCommand(t, ws.app(), []string{"--no-progress", "--sha256", hex.EncodeToString(sum[:]), media.URL + "/shows/episode_12.mp3"})
	require.NoError(t, err)
	require.Contains(t, stdout, "episode_12.mp3")
	require.Contains(t, ws.read(t, "episode_12.md"), "# Transcription: Episode 12")
	require.NoFileExists(t, filepath.Join(ws.tempDir, "downloads", "episode_12.mp3"))
}

func TestSingleFileURLChecksumMismatch(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	app := ws.app()
	app.fetchFn = func(_ context.Context, opts download.Options) (string, error) {
		require.Equal(t, "abc", opts.ExpectedSHA256)
		require.Equal(t, filepath.Join(ws.tempDir, "downloads"), opts.Dir)
		return "", errors.New("checksum mismatch: expected abc, got def")
	}

	_, _, err := runCommand(t, app, []string{"--no-progress", "--sha256", "abc", "https://example.com/a.mp3"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "checksum mismatch")
}

func TestMissingCredentialAbortsBeforeAnyWork(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	ws.cfg.APIKey = ""
	ws.addInput(t, "a.mp3")

	_, _, err := runCommand(t, ws.app(), []string{"--no-progress"})
	require.ErrorIs(t, err, config.ErrMissingCredential)
	require.True(t, IsConfigError(err))
	require.NoDirExists(t, ws.outputDir)
	require.NoFileExists(t, ws.argsFile)
}

func TestMissingFFmpegAbortsBeforeAnyWork(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	ws.cfg.FFmpegPath = filepath.Join(t.TempDir(), "no-ffmpeg")
	ws.addInput(t, "a.mp3")

	_, _, err := runCommand(t, ws.app(), []string{"--no-progress"})
	require.Error(t, err)
	require.True(t, IsConfigError(err))
	require.Contains(t, err.Error(), "install ffmpeg")
}

func TestInvalidFlagValueIsConfigError(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	_, _, err := runCommand(t, ws.app(), []string{"--no-progress", "--chunk-duration", "0"})
	require.Error(t, err)
	require.True(t, IsConfigError(err))
	require.Contains(t, err.Error(), "CHUNK_DURATION")

	_, _, err = runCommand(t, ws.app(), []string{"--no-progress", "--format", "html"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "OUTPUT_FORMAT")
}

func TestConfigLoadErrorStopsCommand(t *testing.T) {
	t.Parallel()

	app := newAppState()
	app.loadConfigFn = func(envFile string, explicit bool) (config.Config, error) {
		require.Equal(t, "custom.env", envFile)
		require.True(t, explicit)
		return config.Config{}, &config.Error{Field: "env file", Err: os.ErrNotExist}
	}

	_, _, err := runCommand(t, app, []string{"--env-file", "custom.env", "check"})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestUnreadableInputDirIsConfigError(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	ws.cfg.InputDir = filepath.Join(t.TempDir(), "inputs-file")
	require.NoError(t, os.WriteFile(ws.cfg.InputDir, []byte("not a dir"), 0o644))

	_, _, err := runCommand(t, ws.app(), []string{"--no-progress"})
	require.Error(t, err)
	require.True(t, IsConfigError(err))
}
