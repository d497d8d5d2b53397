package optimizer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reigadegr/cc-proxy-go/internal/config"
)

func allEnabled() config.OptimizationConfig {
	return config.OptimizationConfig{
		EnableNetworkProbeMock:    true,
		EnableFastPrefixDetection: true,
		EnableHistoricalAnalysis:  true,
		EnableTitleGenerationSkip: true,
		EnableSuggestionModeSkip:  true,
		EnableFilepathExtraction:  true,
	}
}

func decodeBody(t *testing.T, resp *Response) map[string]any {
	t.Helper()

	var doc map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &doc))

	return doc
}

func textOf(doc map[string]any) string {
	content := doc["content"].([]any)
	return content[0].(map[string]any)["text"].(string)
}

func usageOf(doc map[string]any) (float64, float64) {
	usage := doc["usage"].(map[string]any)
	return usage["input_tokens"].(float64), usage["output_tokens"].(float64)
}

func TestTry_QuotaProbeHit(t *testing.T) {
	body := []byte(`{"max_tokens":1,"messages":[{"role":"user","content":"count tokens please"}]}`)

	resp, ok := Try(body, "https://api.example.com/v1/messages", allEnabled())
	require.True(t, ok)
	assert.Equal(t, "quota_probe_mock", resp.Reason)

	doc := decodeBody(t, resp)
	assert.Equal(t, "Quota check passed.", textOf(doc))

	in, out := usageOf(doc)
	assert.Equal(t, float64(10), in)
	assert.Equal(t, float64(5), out)
}

func TestTry_PrefixDetectionHit(t *testing.T) {
	body := []byte(`{"messages":[{"role":"user","content":"<policy_spec>rules</policy_spec>\nCommand: git commit -m wip"}]}`)

	resp, ok := Try(body, "https://api.example.com/v1/messages", allEnabled())
	require.True(t, ok)
	assert.Equal(t, "fast_prefix_detection", resp.Reason)

	doc := decodeBody(t, resp)
	assert.Equal(t, "git commit", textOf(doc))

	in, out := usageOf(doc)
	assert.Equal(t, float64(100), in)
	assert.Equal(t, float64(5), out)
}

func TestTry_TitleGenerationHit(t *testing.T) {
	body := []byte(`{"system":[{"type":"text","text":"Analyze if this message indicates a new conversation topic."}],"messages":[{"role":"user","content":"hi"}]}`)

	resp, ok := Try(body, "https://api.example.com/v1/messages", allEnabled())
	require.True(t, ok)
	assert.Equal(t, "title_generation_skip", resp.Reason)
	assert.Equal(t, "Conversation", textOf(decodeBody(t, resp)))
}

func TestTry_SuggestionModeHit(t *testing.T) {
	body := []byte(`{"messages":[{"role":"user","content":"[SUGGESTION MODE: on] do something"}]}`)

	resp, ok := Try(body, "https://api.example.com/v1/messages", allEnabled())
	require.True(t, ok)
	assert.Equal(t, "suggestion_mode_skip", resp.Reason)

	doc := decodeBody(t, resp)
	assert.Equal(t, "", textOf(doc))

	in, out := usageOf(doc)
	assert.Equal(t, float64(100), in)
	assert.Equal(t, float64(1), out, "suggestion mode is the one detector with output_tokens=1")
}

func TestTry_FilepathExtractionHit(t *testing.T) {
	body := []byte(`{"messages":[{"role":"user","content":"Command: cat foo.go bar.go\nOutput:\nfile contents\nplease list the filepaths from this"}]}`)

	resp, ok := Try(body, "https://api.example.com/v1/messages", allEnabled())
	require.True(t, ok)
	assert.Equal(t, "filepath_extraction_mock", resp.Reason)

	doc := decodeBody(t, resp)
	assert.Equal(t, "<filepaths>\nfoo.go\nbar.go\n</filepaths>", textOf(doc))

	in, out := usageOf(doc)
	assert.Equal(t, float64(100), in)
	assert.Equal(t, float64(10), out)
}

func TestTry_HistoricalAnalysisHit(t *testing.T) {
	body := []byte(`{"system":[{"type":"text","text":"You are an expert at analyzing git history."}],"messages":[{"role":"user","content":"summarize"}]}`)

	resp, ok := Try(body, "https://api.example.com/v1/messages", allEnabled())
	require.True(t, ok)
	assert.Equal(t, "historical_analysis_skip", resp.Reason)
	assert.Equal(t, "historical analysis passed.", textOf(decodeBody(t, resp)))
}

func TestTry_NonOptimizationRequestReturnsFalse(t *testing.T) {
	body := []byte(`{"max_tokens":1024,"messages":[{"role":"user","content":"write me a poem"}]}`)

	_, ok := Try(body, "https://api.example.com/v1/messages", allEnabled())
	assert.False(t, ok)
}

func TestTry_CountTokensURLHitWithValidJSON(t *testing.T) {
	body := []byte(`{"messages":[{"role":"user","content":"hi"}]}`)

	resp, ok := Try(body, "https://api.example.com/v1/messages/count_tokens", allEnabled())
	require.True(t, ok)
	assert.Equal(t, "max_tokens_mock", resp.Reason)
	assert.Equal(t, "Max tokens passed.", textOf(decodeBody(t, resp)))
}

func TestTry_CountTokensURLHitWithInvalidJSON(t *testing.T) {
	// The URL check must run before any JSON parsing is attempted, so an
	// invalid body must not prevent the match.
	body := []byte("not json")

	resp, ok := Try(body, "https://api.example.com/v1/messages/count_tokens", allEnabled())
	require.True(t, ok)
	assert.Equal(t, "max_tokens_mock", resp.Reason)
}

func TestTry_InvalidJSONWithoutCountTokensURLReturnsFalse(t *testing.T) {
	_, ok := Try([]byte("not json"), "https://api.example.com/v1/messages", allEnabled())
	assert.False(t, ok)
}

func TestTry_FlagDisablementSuppressesDetector(t *testing.T) {
	flags := allEnabled()
	flags.EnableNetworkProbeMock = false

	body := []byte(`{"max_tokens":1,"messages":[{"role":"user","content":"count tokens please"}]}`)

	_, ok := Try(body, "https://api.example.com/v1/messages", flags)
	assert.False(t, ok)

	_, ok = Try([]byte("ignored"), "https://api.example.com/v1/messages/count_tokens", flags)
	assert.False(t, ok)
}

func TestExtractCommandPrefix_InjectionDetected(t *testing.T) {
	assert.Equal(t, "command_injection_detected", extractCommandPrefix("echo `whoami`"))
	assert.Equal(t, "command_injection_detected", extractCommandPrefix("echo $(whoami)"))
}

func TestExtractCommandPrefix_EmptyIsNone(t *testing.T) {
	assert.Equal(t, "none", extractCommandPrefix(""))
	assert.Equal(t, "none", extractCommandPrefix("FOO=bar BAZ=qux"))
}

func TestExtractCommandPrefix_TwoWordCommand(t *testing.T) {
	assert.Equal(t, "git commit", extractCommandPrefix("git commit -m wip"))
	assert.Equal(t, "git", extractCommandPrefix("git -v"))
	assert.Equal(t, "git", extractCommandPrefix("git"))
}

func TestExtractCommandPrefix_EnvPrefixJoined(t *testing.T) {
	assert.Equal(t, "FOO=bar ls", extractCommandPrefix("FOO=bar ls -la"))
}

func TestExtractCommandPrefix_OrdinaryCommand(t *testing.T) {
	assert.Equal(t, "ls", extractCommandPrefix("ls -la /tmp"))
}

func TestExtractFilepathsFromCommand_ListingCommandYieldsEmpty(t *testing.T) {
	assert.Equal(t, "<filepaths>\n</filepaths>", extractFilepathsFromCommand("ls -la /tmp", ""))
}

func TestExtractFilepathsFromCommand_ReadingCommandYieldsArgs(t *testing.T) {
	got := extractFilepathsFromCommand("cat a.txt b.txt", "")
	assert.Equal(t, "<filepaths>\na.txt\nb.txt\n</filepaths>", got)
}

func TestExtractFilepathsFromCommand_GrepWithoutPatternFlagSkipsFirstPositional(t *testing.T) {
	got := extractFilepathsFromCommand("grep TODO a.txt b.txt", "")
	assert.Equal(t, "<filepaths>\na.txt\nb.txt\n</filepaths>", got)
}

func TestExtractFilepathsFromCommand_GrepWithPatternFlagKeepsAllPositionals(t *testing.T) {
	got := extractFilepathsFromCommand("grep -e TODO a.txt b.txt", "")
	assert.Equal(t, "<filepaths>\na.txt\nb.txt\n</filepaths>", got)
}

func TestExtractFilepathsFromCommand_UnknownCommandYieldsEmpty(t *testing.T) {
	assert.Equal(t, "<filepaths>\n</filepaths>", extractFilepathsFromCommand("curl https://example.com", ""))
}

func TestSplitShellWords_QuotingAndEscapes(t *testing.T) {
	assert.Equal(t, []string{"a", "b c", "d'e"}, splitShellWords(`a "b c" d\'e`))
	assert.Equal(t, []string{"one two", "three"}, splitShellWords(`'one two' three`))
	assert.Equal(t, []string{"trailing\\"}, splitShellWords(`trailing\`))
}
