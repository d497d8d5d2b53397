package optimizer

import "strings"

// twoWordCommands are commands whose first non-flag argument forms
// part of the reported prefix (e.g. "git commit", not just "git").
var twoWordCommands = map[string]bool{
	"git":     true,
	"npm":     true,
	"docker":  true,
	"kubectl": true,
	"cargo":   true,
	"go":      true,
	"pip":     true,
	"yarn":    true,
}

var listingCommands = map[string]bool{
	"ls": true, "dir": true, "find": true, "tree": true,
	"pwd": true, "cd": true, "mkdir": true, "rmdir": true, "rm": true,
}

var readingCommands = map[string]bool{
	"cat": true, "head": true, "tail": true, "less": true, "more": true, "bat": true, "type": true,
}

// grepFlagsWithArgument are grep flags that consume the following
// token as their own argument rather than as a positional.
var grepFlagsWithArgument = map[string]bool{
	"-e": true, "-f": true, "-m": true, "-A": true, "-B": true, "-C": true,
}

// extractCommandPrefix reduces a shell command line to a short,
// loggable prefix: "command_injection_detected" for anything
// containing a backtick or "$(", "none" for an empty or
// env-var-only command line, "first second" for two-word commands
// like "git commit" (leading KEY=VALUE tokens are dropped), the
// KEY=VALUE tokens joined with the command word (e.g. "FOO=bar ls")
// when any precede another command, and just the first word otherwise.
func extractCommandPrefix(command string) string {
	if strings.Contains(command, "`") || strings.Contains(command, "$(") {
		return "command_injection_detected"
	}

	tokens := splitShellWords(command)
	if len(tokens) == 0 {
		return "none"
	}

	var envPrefix []string

	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		if strings.Contains(tok, "=") && !strings.HasPrefix(tok, "-") {
			envPrefix = append(envPrefix, tok)
			i++
			continue
		}

		break
	}

	remaining := tokens[i:]
	if len(remaining) == 0 {
		return "none"
	}

	firstWord := remaining[0]

	if twoWordCommands[firstWord] {
		if len(remaining) > 1 && !strings.HasPrefix(remaining[1], "-") {
			return firstWord + " " + remaining[1]
		}

		return firstWord
	}

	if len(envPrefix) > 0 {
		return strings.Join(envPrefix, " ") + " " + firstWord
	}

	return firstWord
}

// extractFilepathsFromCommand inspects the base command and builds the
// <filepaths> XML block the filepath-extraction detector returns as
// its canned response text. output is currently unused by the
// detection rules themselves but kept for call-site symmetry with the
// source this is grounded on.
func extractFilepathsFromCommand(command, _ string) string {
	tokens := splitShellWords(command)
	if len(tokens) == 0 {
		return buildFilepathsXML(nil)
	}

	baseCommand := strings.ToLower(basename(tokens[0]))

	switch {
	case listingCommands[baseCommand]:
		return buildFilepathsXML(nil)
	case readingCommands[baseCommand]:
		var paths []string

		for _, tok := range tokens[1:] {
			if !strings.HasPrefix(tok, "-") {
				paths = append(paths, tok)
			}
		}

		return buildFilepathsXML(paths)
	case baseCommand == "grep":
		return buildFilepathsXML(extractGrepFilepaths(tokens[1:]))
	default:
		return buildFilepathsXML(nil)
	}
}

func extractGrepFilepaths(args []string) []string {
	var positionals []string

	patternProvidedViaFlag := false

	skipNext := false
	for _, tok := range args {
		if skipNext {
			skipNext = false
			continue
		}

		if grepFlagsWithArgument[tok] {
			skipNext = true

			if tok == "-e" || tok == "-f" {
				patternProvidedViaFlag = true
			}

			continue
		}

		if strings.HasPrefix(tok, "-") {
			continue
		}

		positionals = append(positionals, tok)
	}

	if patternProvidedViaFlag {
		return positionals
	}

	if len(positionals) <= 1 {
		return nil
	}

	return positionals[1:]
}

func basename(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	idx := strings.LastIndex(path, "/")

	if idx < 0 {
		return path
	}

	return path[idx+1:]
}

func buildFilepathsXML(paths []string) string {
	if len(paths) == 0 {
		return "<filepaths>\n</filepaths>"
	}

	return "<filepaths>\n" + strings.Join(paths, "\n") + "\n</filepaths>"
}

// splitShellWords tokenizes a shell-like command line, honoring
// backslash escapes and single/double quoting. Backslash escaping is
// disabled inside single quotes; quote toggling is mutually exclusive
// between the two quote styles.
func splitShellWords(input string) []string {
	var (
		words      []string
		current    strings.Builder
		hasCurrent bool
		inSingle   bool
		inDouble   bool
	)

	runes := []rune(input)

	for i := 0; i < len(runes); i++ {
		c := runes[i]

		switch {
		case c == '\\' && !inSingle:
			if i+1 < len(runes) {
				current.WriteRune(runes[i+1])
				i++
			} else {
				current.WriteRune('\\')
			}

			hasCurrent = true
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			hasCurrent = true
		case c == '"' && !inSingle:
			inDouble = !inDouble
			hasCurrent = true
		case isShellSpace(c) && !inSingle && !inDouble:
			if hasCurrent {
				words = append(words, current.String())
				current.Reset()
				hasCurrent = false
			}
		default:
			current.WriteRune(c)
			hasCurrent = true
		}
	}

	if hasCurrent {
		words = append(words, current.String())
	}

	return words
}

func isShellSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
