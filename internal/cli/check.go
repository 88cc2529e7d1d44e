package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify ffmpeg and the API credential are available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			var problems []error

			available := app.ffmpegAvailFn
			if available == nil {
				available = ffmpegAvailable
			}
			if available(app.cfg.FFmpegPath) {
				fmt.Fprintf(out, "ffmpeg      ok (%s)\n", app.cfg.FFmpegPath)
			} else {
				fmt.Fprintf(out, "ffmpeg      missing (%s)\n", app.cfg.FFmpegPath)
				problems = append(problems, fmt.Errorf("ffmpeg executable %q not found", app.cfg.FFmpegPath))
			}

			if err := app.cfg.RequireCredential(); err != nil {
				fmt.Fprintln(out, "credential  missing (ELEVENLABS_API_KEY)")
				problems = append(problems, err)
			} else {
				fmt.Fprintln(out, "credential  ok")
			}

			tempDir, err := app.resolveTempDir()
			if err != nil {
				problems = append(problems, err)
			} else {
				fmt.Fprintf(out, "temp dir    %s\n", tempDir)
			}
			fmt.Fprintf(out, "input dir   %s\n", app.cfg.InputDir)
			fmt.Fprintf(out, "output dir  %s\n", app.cfg.OutputDir)
			fmt.Fprintf(out, "language    %s, model %s, %ds chunks, %s output\n", app.cfg.Language, app.cfg.ModelID, app.cfg.ChunkDuration, app.cfg.OutputFormat)

			return errors.Join(problems...)
		},
	}
}
