package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fmueller/chunkscribe/internal/config"
)

func runCommand(t *testing.T, app *appState, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)
	app.out = outBuf

	cmd := newRootCmd(app)
	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

type testWorkspace struct {
	inputDir  string
	outputDir string
	tempDir   string
	argsFile  string
	cfg       config.Config
}

// newWorkspace lays out input, output and temp dirs and a stub ffmpeg that
// writes one segment per number, each containing its own file name.
func newWorkspace(t *testing.T, numbers ...string) *testWorkspace {
	t.Helper()

	root := t.TempDir()
	ws := &testWorkspace{
		inputDir:  filepath.Join(root, "inputs"),
		outputDir: filepath.Join(root, "outputs"),
		tempDir:   filepath.Join(root, "temp"),
		argsFile:  filepath.Join(root, "ffmpeg-args.txt"),
	}
	require.NoError(t, os.MkdirAll(ws.inputDir, 0o755))

	if len(numbers) == 0 {
		numbers = []string{"001", "000"}
	}
	stub := writeStubFFmpeg(t, root, ws.argsFile, numbers)

	ws.cfg = config.Config{
		APIKey:             "test-key",
		BaseURL:            "http://127.0.0.1:1",
		ModelID:            config.DefaultModelID,
		Language:           config.DefaultLanguage,
		InputDir:           ws.inputDir,
		OutputDir:          ws.outputDir,
		TempDir:            ws.tempDir,
		ChunkDuration:      config.DefaultChunkDuration,
		OutputFormat:       config.FormatMarkdown,
		FFmpegPath:         stub,
		SegmentConcurrency: 1,
		LogLevel:           "error",
	}
	return ws
}

func writeStubFFmpeg(t *testing.T, dir, argsFile string, numbers []string) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("#!/bin/sh\nset -eu\n")
	fmt.Fprintf(&b, "printf '%%s\\n' \"$@\" > '%s'\n", argsFile)
	b.WriteString("for last; do :; done\n")
	for _, n := range numbers {
		fmt.Fprintf(&b, "f=$(printf '%%s' \"$last\" | sed 's/%%03d/%s/')\n", n)
		b.WriteString("printf '%s' \"$(basename \"$f\")\" > \"$f\"\n")
	}
	b.WriteString("exit 0\n")

	path := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o755))
	return path
}

func (ws *testWorkspace) addInput(t *testing.T, names ...string) []string {
	t.Helper()

	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(ws.inputDir, name)
		require.NoError(t, os.WriteFile(path, []byte("ID3"), 0o644))
		paths = append(paths, path)
	}
	return paths
}

func (ws *testWorkspace) app() *appState {
	app := newAppState()
	cfg := ws.cfg
	app.loadConfigFn = func(string, bool) (config.Config, error) {
		return cfg, nil
	}
	return app
}

func (ws *testWorkspace) read(t *testing.T, name string) string {
	t.Helper()

	content, err := os.ReadFile(filepath.Join(ws.outputDir, name))
	require.NoError(t, err)
	return string(content)
}

func (ws *testWorkspace) leftoverSegments(t *testing.T) []string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(ws.tempDir, "chunk_*"))
	require.NoError(t, err)
	return matches
}

type sttRequest struct {
	content  string
	language string
	model    string
}

// fakeSTT answers "heard <segment name>" for every upload and fails uploads
// whose name contains "fail".
type fakeSTT struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []sttRequest
}

func newFakeSTT(t *testing.T) *fakeSTT {
	t.Helper()

	f := &fakeSTT{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":{"status":"invalid_api_key","message":"bad key"}}`))
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		content := string(data)

		f.mu.Lock()
		f.requests = append(f.requests, sttRequest{content: content, language: r.FormValue("language_code"), model: r.FormValue("model_id")})
		f.mu.Unlock()

		if strings.Contains(content, "fail") {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"upstream exploded"}`))
			return
		}

		stem := strings.TrimSuffix(content, filepath.Ext(content))
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "heard " + stem})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeSTT) recorded() []sttRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sttRequest(nil), f.requests...)
}
