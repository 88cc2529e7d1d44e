package stt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMIMEType(t *testing.T) {
	t.Parallel()

	require.Equal(t, "audio/mpeg", MIMEType("/tmp/chunk_a_000.mp3"))
	require.Equal(t, "audio/wav", MIMEType("chunk.WAV"))
	require.Equal(t, "audio/mp4", MIMEType("chunk.m4a"))
	require.Equal(t, "audio/ogg", MIMEType("chunk.ogg"))
	require.Equal(t, "audio/flac", MIMEType("chunk.flac"))
	require.Equal(t, "audio/opus", MIMEType("chunk.opus"))
	require.Equal(t, "application/octet-stream", MIMEType("chunk"))
}

func TestFileNameFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, "segment.mp3", FileNameFor("audio/mpeg"))
	require.Equal(t, "segment.flac", FileNameFor("audio/flac"))
	require.Equal(t, "segment.opus", FileNameFor("audio/opus"))
	require.Equal(t, "segment", FileNameFor("application/octet-stream"))
}
