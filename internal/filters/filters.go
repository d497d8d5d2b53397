// Package filters implements the three independent JSON-body mutators
// run unconditionally before local optimization and upstream
// selection: system-prompt stripping, content-tag stripping, and
// tool-description stripping. Each is a pure bytes -> (bytes, bool)
// function; a false second return means "unchanged" and the caller
// must keep using the previous bytes.
package filters

import (
	"encoding/json"
	"strings"
)

// systemPromptMarkers are substrings that, when found anywhere in a
// system message's text, cause that element to be dropped.
var systemPromptMarkers = []string{
	"You are an interactive CLI tool that helps users with soft",
	"You are Claude Code",
	"You are a file search specialist for Claude Code",
	"x-anthropic-billing-header: cc_version=",
}

// contentTagFilters are (open, close) tag pairs. An element whose
// trimmed text both starts with open and ends with close is dropped
// wholesale. The fifth pair is preserved exactly as found in the
// upstream this proxy was modeled on, even though it looks like a typo
// of ("<command-name>", "</command-name>") — see DESIGN.md.
var contentTagFilters = [][2]string{
	{"<system-reminder>", "</system-reminder>"},
	{"<local-command-stdout>", "</local-command-stdout>"},
	{"<command-name>", "</command-name>"},
	{"<local-command-caveat>", "</local-command-caveat>"},
	{"<command-name>", "</command-args>"},
}

// toolDescriptionKeywords are substrings that, when found anywhere in
// a tool's description, cause that tool to be dropped from the tools
// array.
var toolDescriptionKeywords = []string{
	"A powerful search tool built on ripgrep",
	"Allows Claude to search the web",
	"WebFetch WILL FAIL for authenticated or private URLs.",
	"List all available sources (websites) in the Actionbook database.",
	"Search for sources (websites) by keyword.",
	"Search for website action manuals by keyword.",
	"Get complete action details by area_id, including DOM selectors and element information.",
	"Get complete action details by action ID, including DOM selectors and step-by-step instructions.",
}

// StripSystemPrompts parses the body, locates the top-level "system"
// array, and drops every element whose .text contains any marker in
// systemPromptMarkers. It returns (body, false) unchanged if the body
// isn't valid JSON or has no such array.
func StripSystemPrompts(body []byte) ([]byte, bool) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return body, false
	}

	systemRaw, ok := doc["system"]
	if !ok {
		return body, false
	}

	system, ok := systemRaw.([]any)
	if !ok {
		return body, false
	}

	kept := make([]any, 0, len(system))

	changed := false

	for _, item := range system {
		if elementMatchesAnyMarker(item, systemPromptMarkers) {
			changed = true
			continue
		}

		kept = append(kept, item)
	}

	if !changed {
		return body, false
	}

	doc["system"] = kept

	out, err := json.Marshal(doc)
	if err != nil {
		return body, false
	}

	return out, true
}

func elementMatchesAnyMarker(item any, markers []string) bool {
	obj, ok := item.(map[string]any)
	if !ok {
		return false
	}

	text, ok := obj["text"].(string)
	if !ok {
		return false
	}

	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}

	return false
}

// StripContentTags walks every message in "messages" whose content is
// an array and drops every content element whose trimmed .text both
// starts with one of contentTagFilters' opening tags and ends with the
// matching closing tag. Whole-element removal only; text is never
// edited in place.
func StripContentTags(body []byte) ([]byte, bool) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return body, false
	}

	messagesRaw, ok := doc["messages"]
	if !ok {
		return body, false
	}

	messages, ok := messagesRaw.([]any)
	if !ok {
		return body, false
	}

	changed := false

	for _, m := range messages {
		msg, ok := m.(map[string]any)
		if !ok {
			continue
		}

		contentRaw, ok := msg["content"]
		if !ok {
			continue
		}

		content, ok := contentRaw.([]any)
		if !ok {
			continue
		}

		kept := make([]any, 0, len(content))

		for _, item := range content {
			if shouldRemoveContent(item) {
				changed = true
				continue
			}

			kept = append(kept, item)
		}

		msg["content"] = kept
	}

	if !changed {
		return body, false
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return body, false
	}

	return out, true
}

func shouldRemoveContent(item any) bool {
	obj, ok := item.(map[string]any)
	if !ok {
		return false
	}

	text, ok := obj["text"].(string)
	if !ok {
		return false
	}

	trimmed := strings.TrimSpace(text)

	for _, pair := range contentTagFilters {
		if strings.HasPrefix(trimmed, pair[0]) && strings.HasSuffix(trimmed, pair[1]) {
			return true
		}
	}

	return false
}

// StripToolDescriptions drops every element of "tools" whose
// .description contains any keyword in toolDescriptionKeywords.
func StripToolDescriptions(body []byte) ([]byte, bool) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return body, false
	}

	toolsRaw, ok := doc["tools"]
	if !ok {
		return body, false
	}

	tools, ok := toolsRaw.([]any)
	if !ok {
		return body, false
	}

	kept := make([]any, 0, len(tools))

	changed := false

	for _, t := range tools {
		obj, ok := t.(map[string]any)
		if !ok {
			kept = append(kept, t)
			continue
		}

		desc, ok := obj["description"].(string)
		if ok && containsAny(desc, toolDescriptionKeywords) {
			changed = true
			continue
		}

		kept = append(kept, t)
	}

	if !changed {
		return body, false
	}

	doc["tools"] = kept

	out, err := json.Marshal(doc)
	if err != nil {
		return body, false
	}

	return out, true
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}

	return false
}

// Apply runs all three filters in the order spec.md §4.3 mandates:
// system-prompt strip, content-tag strip, tool-description strip. Each
// stage works off the previous stage's output; a stage that doesn't
// change anything simply passes its input through.
func Apply(body []byte) []byte {
	if out, ok := StripSystemPrompts(body); ok {
		body = out
	}

	if out, ok := StripContentTags(body); ok {
		body = out
	}

	if out, ok := StripToolDescriptions(body); ok {
		body = out
	}

	return body
}
