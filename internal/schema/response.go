package schema

import "encoding/json"

// OpenAIResponsesToAnthropic translates a non-streaming OpenAI
// Responses response body into an Anthropic Messages response body.
// modelHint is used when the upstream response omits its own model
// field.
func OpenAIResponsesToAnthropic(body []byte, modelHint string) ([]byte, error) {
	var object map[string]any
	if err := json.Unmarshal(body, &object); err != nil {
		return nil, errNotJSONObject
	}

	id, _ := object["id"].(string)
	if id == "" {
		id = "msg_proxy"
	}

	model, _ := object["model"].(string)
	if model == "" {
		model = modelHint
	}

	if model == "" {
		model = "unknown"
	}

	var usage map[string]any
	if u, ok := object["usage"].(map[string]any); ok {
		usage = mapOpenAIUsageToAnthropicUsage(u)
	} else {
		usage = map[string]any{"input_tokens": 0, "output_tokens": 0}
	}

	output, _ := object["output"].([]any)

	var combinedText, thinkingText string

	toolUses := make([]any, 0)

	for _, raw := range output {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		switch item["type"] {
		case "message":
			if item["role"] != "assistant" {
				continue
			}

			content, _ := item["content"].([]any)
			for _, rawPart := range content {
				part, ok := rawPart.(map[string]any)
				if !ok {
					continue
				}

				switch part["type"] {
				case "output_text":
					if text, ok := part["text"].(string); ok {
						combinedText += text
					}
				case "reasoning_text":
					if text, ok := part["text"].(string); ok {
						thinkingText += text
					}
				}
			}
		case "function_call":
			if toolUse, ok := responsesFunctionCallToToolUse(item); ok {
				toolUses = append(toolUses, toolUse)
			}
		}
	}

	content := make([]any, 0, len(toolUses)+2)

	if trimmedNonEmpty(thinkingText) {
		content = append(content, map[string]any{"type": "thinking", "thinking": thinkingText})
	}

	hasToolUses := len(toolUses) > 0
	if trimmedNonEmpty(combinedText) || !hasToolUses {
		content = append(content, map[string]any{"type": "text", "text": combinedText})
	}

	content = append(content, toolUses...)

	stopReason := anthropicStopReasonFromResponseObject(object, hasToolUses)

	out := map[string]any{
		"id":            id,
		"type":          "message",
		"role":          "assistant",
		"model":         model,
		"content":       content,
		"stop_reason":   stopReason,
		"stop_sequence": nil,
		"usage":         usage,
	}

	return json.Marshal(out)
}

func trimmedNonEmpty(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return true
		}
	}

	return false
}

func responsesFunctionCallToToolUse(item map[string]any) (map[string]any, bool) {
	callID, _ := item["call_id"].(string)

	id := callID
	if id == "" {
		id, _ = item["id"].(string)
	}

	if id == "" {
		return nil, false
	}

	name, _ := item["name"].(string)
	arguments, _ := item["arguments"].(string)

	var input any

	var parsed map[string]any
	if err := json.Unmarshal([]byte(arguments), &parsed); err == nil {
		input = parsed
	} else {
		input = map[string]any{"_raw": arguments}
	}

	return map[string]any{
		"type":  "tool_use",
		"id":    id,
		"name":  name,
		"input": input,
	}, true
}

func mapOpenAIUsageToAnthropicUsage(usage map[string]any) map[string]any {
	return map[string]any{
		"input_tokens":  firstNumber(usage, "input_tokens", "prompt_tokens"),
		"output_tokens": firstNumber(usage, "output_tokens", "completion_tokens"),
	}
}

func firstNumber(usage map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if n, ok := usage[key].(float64); ok {
			return n
		}
	}

	return 0
}

func anthropicStopReasonFromResponseObject(object map[string]any, hasToolUses bool) string {
	status, _ := object["status"].(string)
	if status == "" {
		status = "completed"
	}

	switch status {
	case "incomplete":
		return "max_tokens"
	case "completed":
		if hasToolUses {
			return "tool_use"
		}

		return "end_turn"
	default:
		return "end_turn"
	}
}
