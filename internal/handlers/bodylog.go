package handlers

import (
	"log/slog"
	"unicode/utf8"
)

// bodyLogChunkSize mirrors the original's log_full_body chunk size:
// large bodies are split so a single log line never carries an
// unbounded payload.
const bodyLogChunkSize = 8000

// logFullBody logs body in bodyLogChunkSize-byte, UTF-8-boundary-safe
// chunks under label, each chunk carrying its index and the total
// chunk count as structured fields.
func logFullBody(logger *slog.Logger, label string, body []byte) {
	total := (len(body) + bodyLogChunkSize - 1) / bodyLogChunkSize
	if total == 0 {
		total = 1
	}

	start := 0

	for i := 0; i < total; i++ {
		end := start + bodyLogChunkSize
		if end > len(body) {
			end = len(body)
		}

		end = floorCharBoundary(body, end)

		logger.Debug(label,
			"chunk", i+1,
			"chunks", total,
			"bytes", len(body),
			"body", string(body[start:end]),
		)

		start = end
	}
}

// floorCharBoundary walks end backward until it lands on a UTF-8 rune
// boundary, so a chunk split never cuts a multi-byte rune in half.
func floorCharBoundary(body []byte, end int) int {
	if end >= len(body) {
		return len(body)
	}

	for end > 0 && !utf8.RuneStart(body[end]) {
		end--
	}

	return end
}
