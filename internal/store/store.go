package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/fmueller/chunkscribe/internal/segment"
)

const (
	FormatMarkdown = "md"
	FormatText     = "txt"

	combinedBaseName = "combined_transcription"
)

var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".m4a":  {},
	".ogg":  {},
	".flac": {},
}

// Section is one file's entry in the combined document.
type Section struct {
	ID   string
	Text string
}

// Store persists transcripts and manages the segment scratch directory.
type Store struct {
	Format string
	Now    func() time.Time
	Logger *zap.Logger
}

func New(format string, logger *zap.Logger) *Store {
	return &Store{Format: format, Logger: logger}
}

func IsAudioFile(name string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Discover lists the audio files directly inside dir, sorted by name.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !IsAudioFile(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func EnsureDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// OutputPath is where the transcript of sourceFile is written.
func (s *Store) OutputPath(outputDir, sourceFile string) string {
	base := filepath.Base(sourceFile)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, stem+"."+s.format())
}

func (s *Store) WriteTranscript(outputDir, sourceFile, text string) (string, error) {
	path := s.OutputPath(outputDir, sourceFile)
	if FileExists(path) {
		s.log().Warn("overwriting transcript", zap.String("path", path))
	}

	content := text + "\n"
	if s.format() == FormatMarkdown {
		base := filepath.Base(sourceFile)
		content = formatMarkdown(text, strings.TrimSuffix(base, filepath.Ext(base)), s.now())
	}

	if err := writeFile(path, content); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Store) WriteCombined(outputDir string, sections []Section) (string, error) {
	if len(sections) == 0 {
		return "", errors.New("no sections to combine")
	}

	path := filepath.Join(outputDir, combinedBaseName+"."+s.format())
	var content string
	if s.format() == FormatMarkdown {
		content = formatCombinedMarkdown(sections)
	} else {
		content = formatCombinedText(sections)
	}

	if err := writeFile(path, content); err != nil {
		return "", err
	}
	return path, nil
}

// PurgeSegments removes every segment file of prefix from tempDir.
func (s *Store) PurgeSegments(tempDir, prefix string) (int, error) {
	return segment.Remove(tempDir, prefix)
}

func formatMarkdown(text, title string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Transcription: %s\n\n", formatTitle(title))
	fmt.Fprintf(&b, "*Transcribed on %s at %s*\n\n", now.Format("2006-01-02"), now.Format("15:04:05"))
	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		b.WriteString(paragraph)
		b.WriteString("\n\n")
	}
	return b.String()
}

// formatTitle turns a file stem like "team_sync-notes" into "Team Sync-Notes".
func formatTitle(stem string) string {
	runes := []rune(strings.ReplaceAll(stem, "_", " "))
	prevWord := false
	for i, r := range runes {
		word := unicode.IsLetter(r) || unicode.IsDigit(r)
		if word && !prevWord {
			runes[i] = unicode.ToUpper(r)
		}
		prevWord = word
	}
	return string(runes)
}

func formatCombinedMarkdown(sections []Section) string {
	var b strings.Builder
	b.WriteString("# Transcription\n\n")
	for _, section := range sections {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", section.ID, section.Text)
	}
	return b.String()
}

func formatCombinedText(sections []Section) string {
	var b strings.Builder
	for i, section := range sections {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s\n%s\n\n%s\n", section.ID, strings.Repeat("=", len([]rune(section.ID))), section.Text)
	}
	return b.String()
}

// writeFile replaces path through a temporary sibling so readers never see a
// half-written transcript.
func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tempPath := path + ".part"
	if err := os.WriteFile(tempPath, []byte(content), 0o644); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("move %s into place: %w", path, err)
	}
	return nil
}

func (s *Store) format() string {
	if s.Format == FormatText {
		return FormatText
	}
	return FormatMarkdown
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
