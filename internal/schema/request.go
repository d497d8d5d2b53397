// Package schema implements bidirectional translation between the
// Anthropic Messages wire format and the OpenAI Responses wire format,
// adapted from the teacher's generic map[string]any tree-walking style
// in internal/providers/base.go.
package schema

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNotJSONObject = errors.New("request body must be a JSON object")

// AnthropicToOpenAIResponses translates an Anthropic Messages request
// body into an OpenAI Responses request body.
func AnthropicToOpenAIResponses(body []byte) ([]byte, error) {
	var object map[string]any
	if err := json.Unmarshal(body, &object); err != nil {
		return nil, errNotJSONObject
	}

	model, ok := object["model"].(string)
	if !ok {
		return nil, errors.New("request must include model")
	}

	stream, _ := object["stream"].(bool)

	maxOutputTokens := 4096
	if raw, ok := object["max_tokens"].(float64); ok && raw > 0 {
		maxOutputTokens = int(raw)
	}

	messages, ok := object["messages"].([]any)
	if !ok {
		return nil, errors.New("request must include messages")
	}

	inputItems := make([]any, 0, len(messages))
	for _, m := range messages {
		inputItems = append(inputItems, claudeMessageToResponsesInputItems(m)...)
	}

	repairMalformedFunctionCallOutputs(inputItems)

	out := map[string]any{
		"model":             model,
		"max_output_tokens": maxOutputTokens,
		"stream":            stream,
		"input":             inputItems,
	}

	if instructions := claudeSystemToText(object["system"]); instructions != "" {
		out["instructions"] = instructions
	}

	if temperature, ok := object["temperature"]; ok {
		out["temperature"] = temperature
	}

	if topP, ok := object["top_p"]; ok {
		out["top_p"] = topP
	}

	if stop, ok := mapAnthropicStopSequencesToOpenAIStop(object["stop_sequences"]); ok {
		out["stop"] = stop
	}

	if tools, ok := object["tools"]; ok {
		out["tools"] = mapAnthropicToolsToResponses(tools)
	}

	toolChoice, parallelToolCalls := mapAnthropicToolChoiceToResponses(object["tool_choice"])
	if toolChoice != nil {
		out["tool_choice"] = toolChoice
	}

	if parallelToolCalls != nil {
		out["parallel_tool_calls"] = *parallelToolCalls
	}

	return json.Marshal(out)
}

func claudeMessageToResponsesInputItems(message any) []any {
	m, ok := message.(map[string]any)
	if !ok {
		return nil
	}

	role, _ := m["role"].(string)
	if role == "" {
		role = "user"
	}

	if role == "system" {
		return nil
	}

	blocks := claudeContentToBlocks(m["content"])

	// OpenAI Responses rejects input_text in an assistant input
	// message; assistant turns must use output_text instead.
	textPartType := "input_text"
	if role == "assistant" {
		textPartType = "output_text"
	}

	var items []any

	messageParts := make([]any, 0, len(blocks))

	for _, b := range blocks {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}

		switch block["type"] {
		case "text":
			if text, ok := block["text"].(string); ok {
				messageParts = append(messageParts, map[string]any{"type": textPartType, "text": text})
			}
		case "image":
			if part, ok := anthropicImageBlockToInputImagePart(block); ok {
				messageParts = append(messageParts, part)
			}
		case "document":
			if part, ok := anthropicDocumentBlockToInputFilePart(block); ok {
				messageParts = append(messageParts, part)
			}
		}
	}

	if len(messageParts) > 0 {
		items = append(items, map[string]any{
			"type":    "message",
			"role":    role,
			"content": messageParts,
		})
	}

	for _, b := range blocks {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}

		switch block["type"] {
		case "tool_use":
			callID, _ := block["id"].(string)
			if callID == "" {
				callID = "call_proxy"
			}

			name, _ := block["name"].(string)

			input := block["input"]
			if input == nil {
				input = map[string]any{}
			}

			arguments, err := json.Marshal(input)
			if err != nil {
				arguments = []byte("{}")
			}

			items = append(items, map[string]any{
				"type":      "function_call",
				"call_id":   callID,
				"name":      name,
				"arguments": string(arguments),
			})
		case "tool_result":
			callID, _ := block["tool_use_id"].(string)

			var outputText string

			switch content := block["content"].(type) {
			case string:
				outputText = content
			case nil:
				outputText = ""
			default:
				if encoded, err := json.Marshal(content); err == nil {
					outputText = string(encoded)
				}
			}

			isError, _ := block["is_error"].(bool)
			if isError && outputText != "" {
				outputText = "[ERROR] " + outputText
			}

			items = append(items, map[string]any{
				"type":    "function_call_output",
				"call_id": callID,
				"output":  outputText,
			})
		}
	}

	return items
}

func claudeSystemToText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		texts := make([]string, 0, len(v))

		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}

			if obj["type"] != "text" {
				continue
			}

			if text, ok := obj["text"].(string); ok {
				texts = append(texts, text)
			}
		}

		return joinSystemTexts(texts)
	default:
		return ""
	}
}

func joinSystemTexts(texts []string) string {
	kept := make([]string, 0, len(texts))

	for _, t := range texts {
		trimmed := strings.TrimSpace(t)
		if trimmed != "" {
			kept = append(kept, trimmed)
		}
	}

	return strings.Join(kept, "\n")
}

func claudeContentToBlocks(content any) []any {
	switch v := content.(type) {
	case string:
		return []any{map[string]any{"type": "text", "text": v}}
	case []any:
		blocks := make([]any, len(v))
		for i, item := range v {
			blocks[i] = normalizeTextBlock(item)
		}

		return blocks
	default:
		return nil
	}
}

// normalizeTextBlock coerces a text block's .text field to a plain
// string, recursing through a nested {text:...} or {value:...}
// wrapper, or to an empty string if unrecoverable.
func normalizeTextBlock(item any) any {
	block, ok := item.(map[string]any)
	if !ok {
		return item
	}

	if block["type"] != "text" {
		return item
	}

	if _, alreadyString := block["text"].(string); alreadyString {
		return item
	}

	textValue, present := block["text"]
	if !present {
		return item
	}

	if extracted, ok := extractTextValue(textValue); ok {
		block["text"] = extracted
	} else {
		block["text"] = ""
	}

	return block
}

func extractTextValue(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case map[string]any:
		if text, present := v["text"]; present {
			return extractTextValue(text)
		}

		if val, present := v["value"]; present {
			return extractTextValue(val)
		}

		return "", false
	default:
		return "", false
	}
}

// repairMalformedFunctionCallOutputs scans the already-built input
// list for function_call_output items whose output string is itself a
// JSON array (a shape the CLI occasionally emits instead of the
// expected plain string), and rewrites them in place into an
// assistant message whose content is the parsed array with its second
// element dropped and its first element's type set to output_text.
func repairMalformedFunctionCallOutputs(items []any) {
	for i, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok || item["type"] != "function_call_output" {
			continue
		}

		output, ok := item["output"].(string)
		if !ok {
			continue
		}

		var parsed []any
		if err := json.Unmarshal([]byte(output), &parsed); err != nil || len(parsed) == 0 {
			continue
		}

		if len(parsed) > 1 {
			parsed = append(parsed[:1], parsed[2:]...)
		}

		if first, ok := parsed[0].(map[string]any); ok {
			first["type"] = "output_text"
		}

		delete(item, "call_id")
		delete(item, "output")
		item["type"] = "message"
		item["role"] = "assistant"
		item["content"] = parsed

		items[i] = item
	}
}
