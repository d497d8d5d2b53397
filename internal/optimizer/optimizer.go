// Package optimizer implements the LocalOptimizer: a fixed catalogue
// of six probe detectors the Claude CLI issues to test quotas,
// prefix-detect shell commands, generate titles, and so on. A match
// short-circuits the request with a canned Anthropic-shaped response
// instead of forwarding upstream.
package optimizer

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/reigadegr/cc-proxy-go/internal/config"
)

const (
	historyAnalysisPhrase = "You are an expert at analyzing git history."
	titleGenerationPhrase = "Analyze if this message indicates a new conversation topic."
	suggestionModeMarker  = "[SUGGESTION MODE:"
	commandMarker         = "Command:"
	outputMarker          = "Output:"
	policySpecMarker      = "<policy_spec>"
)

// Response is the result of a matched detector: a fully formed
// Anthropic message body and a static reason tag reported via the
// x-cc-proxy-optimization response header.
type Response struct {
	Body   []byte
	Reason string
}

var messageSequence atomic.Uint64

func init() {
	messageSequence.Store(1)
}

// Try evaluates the six detectors in spec order against the request
// body and URL, returning the first match. It returns (nil, false) if
// none match or the corresponding flag is disabled.
//
// The count-tokens URL check runs before any JSON parsing is
// attempted, so an invalid-JSON body with a count_tokens URL still
// produces a hit.
func Try(body []byte, requestURL string, flags config.OptimizationConfig) (*Response, bool) {
	if flags.EnableNetworkProbeMock && isCountTokensURL(requestURL) {
		return buildTextResponse("Max tokens passed.", 10, 5, "max_tokens_mock"), true
	}

	var request map[string]any
	if err := json.Unmarshal(body, &request); err != nil {
		return nil, false
	}

	if flags.EnableNetworkProbeMock && isQuotaCheckRequest(request) {
		return buildTextResponse("Quota check passed.", 10, 5, "quota_probe_mock"), true
	}

	if flags.EnableHistoricalAnalysis && isHistoricalAnalysisRequest(request) {
		return buildTextResponse("historical analysis passed.", 100, 5, "historical_analysis_skip"), true
	}

	if flags.EnableFastPrefixDetection {
		if command, ok := detectPrefixCommand(request); ok {
			prefix := extractCommandPrefix(command)
			return buildTextResponse(prefix, 100, 5, "fast_prefix_detection"), true
		}
	}

	if flags.EnableTitleGenerationSkip && isTitleGenerationRequest(request) {
		return buildTextResponse("Conversation", 100, 5, "title_generation_skip"), true
	}

	if flags.EnableSuggestionModeSkip && isSuggestionModeRequest(request) {
		return buildTextResponse("", 100, 1, "suggestion_mode_skip"), true
	}

	if flags.EnableFilepathExtraction {
		if command, output, ok := detectFilepathExtractionRequest(request); ok {
			filepaths := extractFilepathsFromCommand(command, output)
			return buildTextResponse(filepaths, 100, 10, "filepath_extraction_mock"), true
		}
	}

	return nil, false
}

func isCountTokensURL(url string) bool {
	return strings.Contains(strings.ToLower(url), "count_tokens")
}

func isQuotaCheckRequest(request map[string]any) bool {
	maxTokens, ok := asInt(request["max_tokens"])
	if !ok || maxTokens != 1 {
		return false
	}

	messages, ok := getMessages(request)
	if !ok || len(messages) != 1 || messageRole(messages[0]) != "user" {
		return false
	}

	text := extractMessageText(messages[0])

	return strings.Contains(strings.ToLower(text), "count")
}

func detectPrefixCommand(request map[string]any) (string, bool) {
	messages, ok := getMessages(request)
	if !ok || len(messages) != 1 || messageRole(messages[0]) != "user" {
		return "", false
	}

	content := extractMessageText(messages[0])
	if !strings.Contains(content, policySpecMarker) || !strings.Contains(content, commandMarker) {
		return "", false
	}

	idx := strings.LastIndex(content, commandMarker)
	if idx < 0 {
		return "", false
	}

	return strings.TrimSpace(content[idx+len(commandMarker):]), true
}

func isHistoricalAnalysisRequest(request map[string]any) bool {
	return lastSystemTextContains(request, historyAnalysisPhrase)
}

func isTitleGenerationRequest(request map[string]any) bool {
	return lastSystemTextContains(request, titleGenerationPhrase)
}

func lastSystemTextContains(request map[string]any, phrase string) bool {
	system, ok := getSystem(request)
	if !ok || len(system) == 0 {
		return false
	}

	text := extractSystemText(system[len(system)-1])

	return strings.Contains(text, phrase)
}

func isSuggestionModeRequest(request map[string]any) bool {
	messages, ok := getMessages(request)
	if !ok {
		return false
	}

	for _, m := range messages {
		if messageRole(m) == "user" && strings.Contains(extractMessageText(m), suggestionModeMarker) {
			return true
		}
	}

	return false
}

func detectFilepathExtractionRequest(request map[string]any) (command, output string, ok bool) {
	messages, hasMessages := getMessages(request)
	if !hasMessages || len(messages) != 1 || messageRole(messages[0]) != "user" {
		return "", "", false
	}

	if tools, present := request["tools"].([]any); present && len(tools) > 0 {
		return "", "", false
	}

	content := extractMessageText(messages[0])
	if !strings.Contains(content, commandMarker) || !strings.Contains(content, outputMarker) {
		return "", "", false
	}

	contentLower := strings.ToLower(content)
	userHasFilepaths := strings.Contains(contentLower, "filepaths") || strings.Contains(contentLower, "<filepaths>")

	systemText := ""
	if sys, present := request["system"]; present {
		systemText = extractTextFromContent(sys)
	}

	systemLower := strings.ToLower(systemText)
	systemHasExtract := strings.Contains(systemLower, "extract any file paths") ||
		strings.Contains(systemLower, "file paths that this command")

	if !userHasFilepaths && !systemHasExtract {
		return "", "", false
	}

	commandStart := strings.Index(content, commandMarker)
	if commandStart < 0 {
		return "", "", false
	}

	commandStart += len(commandMarker)

	relOutputIdx := strings.Index(content[commandStart:], outputMarker)
	if relOutputIdx < 0 {
		return "", "", false
	}

	outputIdx := commandStart + relOutputIdx

	command = strings.TrimSpace(content[commandStart:outputIdx])
	out := strings.TrimSpace(content[outputIdx+len(outputMarker):])

	for _, marker := range []string{"<", "\n\n"} {
		if idx := strings.Index(out, marker); idx >= 0 {
			out = strings.TrimSpace(out[:idx])
		}
	}

	return command, out, true
}

func getMessages(request map[string]any) ([]any, bool) {
	messages, ok := request["messages"].([]any)
	return messages, ok
}

func getSystem(request map[string]any) ([]any, bool) {
	system, ok := request["system"].([]any)
	return system, ok
}

func messageRole(message any) string {
	m, ok := message.(map[string]any)
	if !ok {
		return ""
	}

	role, _ := m["role"].(string)

	return role
}

func extractMessageText(message any) string {
	m, ok := message.(map[string]any)
	if !ok {
		return ""
	}

	return extractTextFromContent(m["content"])
}

func extractSystemText(item any) string {
	m, ok := item.(map[string]any)
	if !ok {
		return ""
	}

	return extractTextFromContent(m["text"])
}

// extractTextFromContent mirrors the original's fallback logic: a
// plain string is returned as-is; an array of content blocks has each
// block's .text (or, failing that, .thinking) concatenated.
func extractTextFromContent(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder

		for _, block := range v {
			bm, ok := block.(map[string]any)
			if !ok {
				continue
			}

			if text, ok := bm["text"].(string); ok {
				b.WriteString(text)
				continue
			}

			if thinking, ok := bm["thinking"].(string); ok {
				b.WriteString(thinking)
			}
		}

		return b.String()
	default:
		return ""
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func buildTextResponse(text string, inputTokens, outputTokens int, reason string) *Response {
	payload := map[string]any{
		"id":            buildMessageID(),
		"type":          "message",
		"role":          "assistant",
		"model":         "unknown-model",
		"content":       []any{map[string]any{"type": "text", "text": text}},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage": map[string]any{
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil
	}

	return &Response{Body: body, Reason: reason}
}

func buildMessageID() string {
	millis := time.Now().UnixMilli()
	seq := messageSequence.Add(1) - 1

	return "msg_" + itoa(millis) + "_" + itoa(int64(seq))
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}

	neg := n < 0
	if neg {
		n = -n
	}

	var buf [20]byte

	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}

	if neg {
		i--
		buf[i] = '-'
	}

	return string(buf[i:])
}
