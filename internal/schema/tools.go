package schema

// mapAnthropicToolsToResponses converts the Anthropic tools array
// shape ({name, description, input_schema}) into the OpenAI Responses
// shape ({type:"function", name, description, parameters}).
func mapAnthropicToolsToResponses(value any) []any {
	tools, ok := value.([]any)
	if !ok {
		return []any{}
	}

	mapped := make([]any, 0, len(tools))

	for _, t := range tools {
		tool, ok := t.(map[string]any)
		if !ok {
			continue
		}

		name, ok := tool["name"].(string)
		if !ok {
			continue
		}

		out := map[string]any{
			"type": "function",
			"name": name,
		}

		if description, ok := tool["description"]; ok {
			out["description"] = description
		}

		if inputSchema, ok := tool["input_schema"]; ok {
			out["parameters"] = inputSchema
		}

		mapped = append(mapped, out)
	}

	return mapped
}

// mapAnthropicToolChoiceToResponses converts Anthropic's tool_choice
// shape into OpenAI's, returning the mapped choice and, separately,
// the parallel_tool_calls flag derived from disable_parallel_tool_use.
func mapAnthropicToolChoiceToResponses(toolChoice any) (mapped any, parallelToolCalls *bool) {
	tc, ok := toolChoice.(map[string]any)
	if !ok {
		return nil, nil
	}

	choiceType, _ := tc["type"].(string)

	switch choiceType {
	case "auto":
		mapped = "auto"
	case "any":
		mapped = "required"
	case "none":
		mapped = "none"
	case "tool":
		name, _ := tc["name"].(string)
		if name != "" {
			mapped = map[string]any{"type": "function", "name": name}
		}
	}

	if disable, ok := tc["disable_parallel_tool_use"].(bool); ok {
		allow := !disable
		parallelToolCalls = &allow
	}

	return mapped, parallelToolCalls
}

// mapAnthropicStopSequencesToOpenAIStop unwraps a stop_sequences array
// into OpenAI's stop field: absent/empty stays unset, a single
// sequence unwraps to a scalar, multiple stay an array.
func mapAnthropicStopSequencesToOpenAIStop(stopSequences any) (any, bool) {
	items, ok := stopSequences.([]any)
	if !ok || len(items) == 0 {
		return nil, false
	}

	if len(items) == 1 {
		return items[0], true
	}

	return items, true
}
