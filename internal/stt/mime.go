package stt

import (
	"path/filepath"
	"strings"
)

var mimeByExt = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// MIMEType guesses the upload content type from a segment path.
func MIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := mimeByExt[ext]; ok {
		return mt
	}
	if ext == "" {
		return "application/octet-stream"
	}
	return "audio/" + strings.TrimPrefix(ext, ".")
}

// FileNameFor names the multipart file part; the service sniffs the
// container, the name only carries a plausible extension.
func FileNameFor(mimeType string) string {
	for ext, mt := range mimeByExt {
		if mt == mimeType {
			return "segment" + ext
		}
	}
	if sub, ok := strings.CutPrefix(mimeType, "audio/"); ok && sub != "" && !strings.ContainsAny(sub, `/"`) {
		return "segment." + sub
	}
	return "segment"
}
