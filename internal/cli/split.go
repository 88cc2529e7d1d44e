package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmueller/chunkscribe/internal/config"
	"github.com/fmueller/chunkscribe/internal/segment"
	"github.com/fmueller/chunkscribe/internal/store"
)

func newSplitCmd(app *appState) *cobra.Command {
	var segmentsDir string

	cmd := &cobra.Command{
		Use:   "split <audio-file>",
		Short: "Split an audio file into segments without transcribing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			available := app.ffmpegAvailFn
			if available == nil {
				available = ffmpegAvailable
			}
			if !available(app.cfg.FFmpegPath) {
				return &config.Error{Field: "FFMPEG_PATH", Err: fmt.Errorf("%s not found; install ffmpeg or set FFMPEG_PATH", app.cfg.FFmpegPath)}
			}

			dir := segmentsDir
			if dir == "" {
				resolved, err := app.resolveTempDir()
				if err != nil {
					return err
				}
				dir = resolved
			}
			if err := store.EnsureDirectories(dir); err != nil {
				return err
			}

			input := filepath.Clean(args[0])
			segments, err := app.splitter().Split(cmd.Context(), segment.Request{
				InputPath:       input,
				OutputDir:       dir,
				DurationSeconds: app.cfg.ChunkDuration,
				Prefix:          segment.PrefixFor(input),
			})
			if err != nil {
				return fmt.Errorf("split %s: %w", input, err)
			}

			app.log().Info("split finished", zap.String("file", filepath.Base(input)), zap.Int("segments", len(segments)), zap.String("path", dir))
			for _, seg := range segments {
				fmt.Fprintln(cmd.OutOrStdout(), seg.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&segmentsDir, "segments-dir", "", "Where to leave the segments (default: the temp directory)")
	return cmd
}
