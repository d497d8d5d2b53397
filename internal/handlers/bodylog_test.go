package handlers

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogFullBody_SingleChunkUnderLimit(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logFullBody(logger, "request body", []byte(`{"hello":"world"}`))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "chunk=1"))
	assert.Contains(t, out, "chunks=1")
}

func TestLogFullBody_SplitsLargeBodyIntoMultipleChunks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	body := bytes.Repeat([]byte("a"), bodyLogChunkSize*2+10)
	logFullBody(logger, "request body", body)

	out := buf.String()
	assert.Contains(t, out, "chunk=1")
	assert.Contains(t, out, "chunk=2")
	assert.Contains(t, out, "chunk=3")
	assert.Contains(t, out, "chunks=3")
}

func TestFloorCharBoundary_NeverSplitsAMultiByteRune(t *testing.T) {
	body := []byte("ab\xE4\xB8\xADcd") // contains a 3-byte UTF-8 rune
	boundary := floorCharBoundary(body, 3)
	assert.NotEqual(t, 3, boundary, "3 lands mid-rune; must adjust backward")
	assert.LessOrEqual(t, boundary, 2)
}
