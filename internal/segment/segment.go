package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// SuffixWidth is the zero padding ffmpeg is asked for (%03d). Numbers past 999
// widen naturally and still sort correctly because ordering is numeric.
const SuffixWidth = 3

type Segment struct {
	Ordinal         int
	Path            string
	SourceFile      string
	DurationSeconds int
}

type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindInvalidInput
	KindToolFailure
	KindIO
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalidInput:
		return "invalid input"
	case KindToolFailure:
		return "tool failure"
	case KindIO:
		return "io error"
	default:
		return "unknown"
	}
}

type SplitError struct {
	Kind     ErrorKind
	Path     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *SplitError) Error() string {
	switch {
	case e.Kind == KindToolFailure && e.ExitCode != 0:
		if e.Stderr != "" {
			return fmt.Sprintf("ffmpeg exited with code %d: %s", e.ExitCode, e.Stderr)
		}
		return fmt.Sprintf("ffmpeg exited with code %d", e.ExitCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
}

func (e *SplitError) Unwrap() error {
	return e.Err
}

func IsKind(err error, kind ErrorKind) bool {
	var splitErr *SplitError
	return errors.As(err, &splitErr) && splitErr.Kind == kind
}

var unsafePrefixChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PrefixFor derives the segment file prefix for an input file from its base name.
func PrefixFor(inputPath string) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = unsafePrefixChars.ReplaceAllString(stem, "_")
	if stem == "" || stem == "." {
		stem = "audio"
	}
	return "chunk_" + stem
}

// OutputPattern is the ffmpeg segment muxer target for prefix and extension.
func OutputPattern(dir, prefix, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%%0%dd%s", prefix, SuffixWidth, ext))
}

func segmentNamePattern(prefix, ext string) *regexp.Regexp {
	extPattern := `\.[^.]+`
	if ext != "" {
		extPattern = regexp.QuoteMeta(ext)
	}
	return regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_(\d+)` + extPattern + `$`)
}

type numberedPath struct {
	number int
	path   string
}

// List returns the files in dir named <prefix>_<digits><ext>, ordered by the
// numeric suffix rather than by directory listing order. An empty ext
// matches any extension.
func List(dir, prefix, ext string) ([]string, error) {
	numbered, err := listNumbered(dir, prefix, ext)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(numbered))
	for _, n := range numbered {
		paths = append(paths, n.path)
	}
	return paths, nil
}

func listNumbered(dir, prefix, ext string) ([]numberedPath, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list segment directory %s: %w", dir, err)
	}

	pattern := segmentNamePattern(prefix, ext)
	var numbered []numberedPath
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		m := pattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		number, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		numbered = append(numbered, numberedPath{number: number, path: filepath.Join(dir, entry.Name())})
	}

	sort.SliceStable(numbered, func(i, j int) bool {
		if numbered[i].number != numbered[j].number {
			return numbered[i].number < numbered[j].number
		}
		return numbered[i].path < numbered[j].path
	})
	return numbered, nil
}

// Remove deletes every segment file for prefix in dir, whatever its extension,
// and reports how many were removed. A missing dir is not an error.
func Remove(dir, prefix string) (int, error) {
	numbered, err := listNumbered(dir, prefix, "")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	var errs []error
	for _, n := range numbered {
		if err := os.Remove(n.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if len(errs) > 0 {
		return removed, fmt.Errorf("remove segments %s_* in %s: %w", prefix, dir, errors.Join(errs...))
	}
	return removed, nil
}
