// Package stats implements TokenAccountant: a heuristic token
// estimator plus running counters split by where the tokens came from
// (a fresh user turn vs. replayed history vs. assistant vs. system),
// grounded on the original's analyze_request_body/calculate_tokens.
package stats

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
)

var systemReminderMarkers = []string{
	"<system-reminder>",
	"The following skills are available",
	"=== MANDATORY: META-COGNITION ROUTING ===",
	"CRITICAL: Use for",
}

// EstimateTokens is the proxy's heuristic token counter:
// (len*2+6)/7, integer division, over the byte length. It is not a
// real tokenizer. It feeds only the Accountant's counters; the
// local-optimization detectors report fixed usage numbers of their own.
func EstimateTokens(text string) uint64 {
	length := len(text)

	return uint64((length*2 + 6) / 7)
}

// isSystemReminder reports whether a user-role message's text is
// actually an injected system prompt riding along in the user turn
// rather than a real user message.
func isSystemReminder(content string) bool {
	for _, marker := range systemReminderMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}

	return strings.HasPrefix(content, "You are Claude Code")
}

// Breakdown is the result of analyzing one request body's token
// distribution across category.
type Breakdown struct {
	Total       uint64
	UserNew     uint64
	UserHistory uint64
	Assistant   uint64
	System      uint64
}

// Analyze walks a request body and buckets its estimated token count.
// "system", "instructions" and "tools" count as System. Only a
// "messages" array is walked for turns; an OpenAI Responses body keeps
// its turns under "input", which is not counted. The most recent genuine user
// message (skipping system-reminder-flavored ones) counts as
// UserNew; every earlier user message counts as UserHistory.
//
// If the body isn't valid JSON, its entire estimated token count is
// attributed to UserNew, matching the fallback for non-JSON/binary
// bodies.
func Analyze(body []byte) Breakdown {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return Breakdown{
			Total:   EstimateTokens(string(body)),
			UserNew: EstimateTokens(string(body)),
		}
	}

	var b Breakdown

	if system, ok := doc["system"]; ok {
		b.System += EstimateTokens(jsonString(system))
	}

	if instructions, ok := doc["instructions"]; ok {
		b.System += EstimateTokens(jsonString(instructions))
	}

	if tools, ok := doc["tools"]; ok {
		b.System += EstimateTokens(jsonString(tools))
	}

	messages, ok := doc["messages"].([]any)
	if !ok {
		b.Total = b.System + b.UserNew + b.UserHistory + b.Assistant
		return b
	}

	type parsedMessage struct {
		role   string
		text   string
		tokens uint64
	}

	parsed := make([]parsedMessage, 0, len(messages))

	for _, raw := range messages {
		message, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		role, ok := message["role"].(string)
		if !ok {
			continue
		}

		content, ok := message["content"]
		if !ok {
			continue
		}

		text := extractText(content)
		parsed = append(parsed, parsedMessage{role: role, text: text, tokens: EstimateTokens(text)})
	}

	lastRealUserIdx := -1

	for i := len(parsed) - 1; i >= 0; i-- {
		if parsed[i].role == "user" && !isSystemReminder(parsed[i].text) {
			lastRealUserIdx = i
			break
		}
	}

	for i, m := range parsed {
		switch m.role {
		case "user":
			switch {
			case isSystemReminder(m.text):
				b.System += m.tokens
			case i == lastRealUserIdx:
				b.UserNew += m.tokens
			default:
				b.UserHistory += m.tokens
			}
		case "assistant":
			b.Assistant += m.tokens
		case "system":
			b.System += m.tokens
		}
	}

	b.Total = b.System + b.UserNew + b.UserHistory + b.Assistant

	return b
}

func extractText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder

		for _, raw := range v {
			item, ok := raw.(map[string]any)
			if !ok {
				continue
			}

			if text, ok := item["text"].(string); ok {
				b.WriteString(text)
			}
		}

		return b.String()
	default:
		return jsonString(content)
	}
}

func jsonString(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return ""
	}

	return string(out)
}

// Accountant holds the process-wide running token counters. All
// fields are relaxed atomics; readers and writers never block each
// other.
type Accountant struct {
	totalTokens       atomic.Uint64
	userNewTokens     atomic.Uint64
	userHistoryTokens atomic.Uint64
	assistantTokens   atomic.Uint64
	systemTokens      atomic.Uint64
	requestCount      atomic.Uint64
}

// New returns a fresh Accountant with all counters at zero.
func New() *Accountant {
	return &Accountant{}
}

// Record analyzes body, adds its breakdown into the running totals,
// and logs both the per-request breakdown and the cumulative waste
// ratio (replayed-history-plus-system tokens against fresh user
// tokens).
func (a *Accountant) Record(logger *slog.Logger, body []byte) Breakdown {
	b := Analyze(body)

	a.totalTokens.Add(b.Total)
	a.userNewTokens.Add(b.UserNew)
	a.userHistoryTokens.Add(b.UserHistory)
	a.assistantTokens.Add(b.Assistant)
	a.systemTokens.Add(b.System)
	count := a.requestCount.Add(1)

	waste := b.UserHistory + b.Assistant + b.System
	wasteRatio := 0.0

	if b.UserNew > 0 {
		wasteRatio = float64(waste) / float64(b.UserNew)
	}

	logger.Debug("request token breakdown",
		"total", b.Total,
		"user_new", b.UserNew,
		"user_history", b.UserHistory,
		"assistant", b.Assistant,
		"system", b.System,
		"waste_ratio", wasteRatio,
	)

	totalAcc := a.totalTokens.Load()
	newAcc := a.userNewTokens.Load()
	histAcc := a.userHistoryTokens.Load() + a.assistantTokens.Load()
	sysAcc := a.systemTokens.Load()

	avgWasteRatio := 0.0
	if newAcc > 0 {
		avgWasteRatio = float64(histAcc+sysAcc) / float64(newAcc)
	}

	logger.Info("cumulative token accounting",
		"requests", count,
		"total", totalAcc,
		"user_new", newAcc,
		"waste", histAcc+sysAcc,
		"waste_history", histAcc,
		"waste_system", sysAcc,
		"avg_waste_ratio", avgWasteRatio,
	)

	return b
}
