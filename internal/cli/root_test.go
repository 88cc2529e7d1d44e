package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fmueller/chunkscribe/internal/config"
)

var errStop = errors.New("stop before running")

func TestRootCommandRegistersCoreFlags(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	flags := cmd.PersistentFlags()

	for _, name := range []string{"verbose", "json", "input-dir", "output-dir", "temp-dir", "chunk-duration", "language", "model", "format", "tag-audio-events", "diarize", "concurrency", "retries", "no-progress", "env-file", "ffmpeg"} {
		require.NotNil(t, flags.Lookup(name), name)
	}
	require.Equal(t, "30", flags.Lookup("chunk-duration").DefValue)
	require.Equal(t, config.DefaultLanguage, flags.Lookup("language").DefValue)
	require.Equal(t, config.DefaultModelID, flags.Lookup("model").DefValue)
	require.Equal(t, "md", flags.Lookup("format").DefValue)
	require.Equal(t, "1", flags.Lookup("concurrency").DefValue)
	require.Equal(t, "0", flags.Lookup("retries").DefValue)
	require.Equal(t, ".env", flags.Lookup("env-file").DefValue)

	require.NotNil(t, cmd.Flags().Lookup("metrics-file"))
	require.NotNil(t, cmd.Flags().Lookup("report"))
	require.NotNil(t, cmd.Flags().Lookup("sha256"))
}

func TestFlagsOverrideLoadedConfig(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t)
	app := ws.app()
	app.preflightFn = func(_ context.Context) error { return errStop }

	_, _, err := runCommand(t, app, []string{"--language", "Armenian", "--model", "scribe_v2", "--diarize", "--retries", "2", "--output-dir", "elsewhere"})
	require.ErrorIs(t, err, errStop)

	require.Equal(t, config.Language("hy"), app.cfg.Language)
	require.Equal(t, "scribe_v2", app.cfg.ModelID)
	require.True(t, app.cfg.Diarize)
	require.Equal(t, 2, app.cfg.TranscribeRetries)
	require.Equal(t, "elsewhere", app.cfg.OutputDir)
	// Untouched flags keep the loaded values.
	require.Equal(t, ws.inputDir, app.cfg.InputDir)
	require.Equal(t, config.FormatMarkdown, app.cfg.OutputFormat)
}

func TestRootHelpParsesSuccessfully(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	require.NoError(t, err)
	require.Contains(t, out.String(), "split")
	require.Contains(t, out.String(), "check")
	require.Contains(t, out.String(), "version")
	require.Contains(t, out.String(), "--chunk-duration")
}

func TestSubcommandHelpParsesSuccessfully(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{name: "split", args: []string{"split", "--help"}, contains: "Split an audio file into segments without transcribing"},
		{name: "check", args: []string{"check", "--help"}, contains: "Verify ffmpeg and the API credential are available"},
		{name: "version", args: []string{"version", "--help"}, contains: "Print the version number"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := NewRootCmd()
			out := new(bytes.Buffer)
			cmd.SetOut(out)
			cmd.SetErr(out)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.NoError(t, err)
			require.Contains(t, out.String(), tt.contains)
		})
	}
}
