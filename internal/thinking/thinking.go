// Package thinking implements ThinkingPatcher: backfilling
// reasoning_content on assistant turns when a request runs in
// AnthropicDirect mode with thinking enabled, grounded on the
// original's reverse-scan-for-fallback + forward-patch shape.
package thinking

import (
	"encoding/json"
	"strings"
)

const reasoningPlaceholder = "[Previous reasoning not available in context]"

// PatchReasoningContent fills in reasoning_content on every assistant
// message of a request body whose top-level thinking.type is
// "enabled". It returns (body, false) unchanged if thinking isn't
// enabled, the body isn't a JSON object with a messages array, or no
// assistant message actually needed patching.
func PatchReasoningContent(body []byte) ([]byte, bool) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return body, false
	}

	if !thinkingEnabled(doc) {
		return body, false
	}

	messages, ok := doc["messages"].([]any)
	if !ok {
		return body, false
	}

	fallback := latestThinkingText(messages)

	patched := false

	for _, raw := range messages {
		message, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		if message["role"] != "assistant" {
			continue
		}

		if patchMessageReasoningContent(message, fallback) {
			patched = true
		}
	}

	if !patched {
		return body, false
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return body, false
	}

	return out, true
}

func thinkingEnabled(doc map[string]any) bool {
	thinking, ok := doc["thinking"].(map[string]any)
	if !ok {
		return false
	}

	thinkingType, _ := thinking["type"].(string)

	return thinkingType == "enabled"
}

func latestThinkingText(messages []any) string {
	for i := len(messages) - 1; i >= 0; i-- {
		message, ok := messages[i].(map[string]any)
		if !ok {
			continue
		}

		if text, ok := extractThinkingText(message); ok {
			return text
		}
	}

	return ""
}

func extractThinkingText(message map[string]any) (string, bool) {
	content, ok := message["content"].([]any)
	if !ok {
		return "", false
	}

	for _, raw := range content {
		block, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		if block["type"] != "thinking" {
			continue
		}

		text, ok := block["thinking"].(string)
		if !ok {
			return "", false
		}

		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return "", false
		}

		return trimmed, true
	}

	return "", false
}

func reasoningMissingOrPlaceholder(message map[string]any) bool {
	value, ok := message["reasoning_content"].(string)
	if !ok {
		return true
	}

	return value == reasoningPlaceholder
}

func patchMessageReasoningContent(message map[string]any, fallback string) bool {
	if !reasoningMissingOrPlaceholder(message) {
		return false
	}

	reasoningValue := reasoningPlaceholder

	if text, ok := extractThinkingText(message); ok {
		reasoningValue = text
	} else if fallback != "" {
		reasoningValue = fallback
	}

	current, _ := message["reasoning_content"].(string)
	if current == reasoningValue {
		return false
	}

	message["reasoning_content"] = reasoningValue

	return true
}
