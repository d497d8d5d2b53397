// Package handlers implements the proxy's two HTTP endpoints: the
// health probe and the ProxyPipeline, which runs every inbound
// request through filters, local optimization, upstream selection,
// schema translation, and upstream dispatch.
package handlers

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/reigadegr/cc-proxy-go/internal/config"
	"github.com/reigadegr/cc-proxy-go/internal/filters"
	"github.com/reigadegr/cc-proxy-go/internal/optimizer"
	"github.com/reigadegr/cc-proxy-go/internal/schema"
	"github.com/reigadegr/cc-proxy-go/internal/stats"
	"github.com/reigadegr/cc-proxy-go/internal/thinking"
	"github.com/reigadegr/cc-proxy-go/internal/upstream"
)

var errNoUpstreams = errors.New("no upstreams configured")

// SelectorSource returns the Selector currently in effect. A new
// Selector is built every time the config reloads with a changed
// upstream list, so the handler never holds a stale one.
type SelectorSource interface {
	Current() *upstream.Selector
}

// ProxyHandler implements the eleven-step ProxyPipeline against a
// live Config snapshot, a rotating Selector, and the process-wide
// token Accountant.
type ProxyHandler struct {
	store      *config.Store
	selectors  SelectorSource
	accountant *stats.Accountant
	logger     *slog.Logger
	client     *http.Client
}

// NewProxyHandler builds a ProxyHandler. The HTTP client is shared
// across all requests and relies on the standard library's built-in
// trust roots.
func NewProxyHandler(store *config.Store, selectors SelectorSource, accountant *stats.Accountant, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		store:      store,
		selectors:  selectors,
		accountant: accountant,
		logger:     logger,
		client:     &http.Client{},
	}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.store.Get()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.gatewayError(w, "read request body", err)
		return
	}

	if cfg.LogReqBody {
		logFullBody(h.logger, "request body", body)
	}

	body = filters.Apply(body)

	if resp, ok := optimizer.Try(body, r.URL.String(), cfg.Optimizations); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("x-cc-proxy-optimization", resp.Reason)
		w.WriteHeader(http.StatusOK)
		w.Write(resp.Body)

		return
	}

	selector := h.selectors.Current()

	selection, ok := selector.Next()
	if !ok {
		h.logger.Error("select upstream", "error", errNoUpstreams)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)

		return
	}

	if selection.Model != "" {
		body = overwriteModel(body, selection.Model)
	}

	switch selection.Mode {
	case config.ModeOpenAIResponses:
		translated, terr := schema.AnthropicToOpenAIResponses(body)
		if terr != nil {
			h.logger.Error("translate request to openai responses", "error", terr)
		} else {
			body = translated
		}
	default:
		if patched, changed := thinking.PatchReasoningContent(body); changed {
			body = patched
		}
	}

	if h.accountant != nil {
		h.accountant.Record(h.logger, body)
	}

	upstreamURL := buildUpstreamURL(selection.Endpoint, r.URL.Path, r.URL.RawQuery, selection.Mode)

	req, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, strings.NewReader(string(body)))
	if err != nil {
		h.gatewayError(w, "build upstream request", err)
		return
	}

	copyRequestHeaders(req, r.Header)
	req.Header.Set("Authorization", "Bearer "+selection.APIKey)
	req.Host = req.URL.Host

	resp, err := h.client.Do(req)
	if err != nil {
		h.gatewayError(w, "upstream request failed", err)
		return
	}
	defer resp.Body.Close()

	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		h.streamResponse(w, resp, cfg.LogResBody)
		return
	}

	h.bufferedResponse(w, resp, selection.Mode, cfg.LogResBody)
}

// overwriteModel sets body.model to model if body decodes as a JSON
// object; it no-ops on any parse failure, matching the proxy's
// best-effort rewrite philosophy.
func overwriteModel(body []byte, model string) []byte {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return body
	}

	doc["model"] = model

	out, err := json.Marshal(doc)
	if err != nil {
		return body
	}

	return out
}

// buildUpstreamURL assembles the outbound request URL the way the
// proxy this is modeled on does: host, path, and query are joined into
// one string and every further transform is a literal substring
// replace against that whole string, not a structured URL edit. This
// is deliberately preserved, quirks and all:
//
//   - "?beta=true" is removed only when that exact literal appears
//     (i.e. "beta=true" is the first query parameter); "?beta=true"
//     followed by "&foo=bar" leaves a dangling "&foo=bar", and
//     "foo=bar&beta=true" is not stripped at all, since no literal
//     "?beta=true" substring exists in it.
//   - in OpenAIResponses mode, "messages" becomes "responses" via
//     substring replace, not a path-segment replace, so a path like
//     "/v1/messages/extra" becomes "/v1/responses/extra" and a
//     hypothetical "/v1/my-messages" becomes "/v1/my-responses" too.
//   - "claude/" is then stripped (a CLI artefact) and repeated slashes
//     collapse to one.
func buildUpstreamURL(endpoint, path, rawQuery string, mode config.Mode) string {
	scheme, host, basePath := splitEndpoint(endpoint)

	fullPath := basePath + path
	if rawQuery != "" {
		fullPath += "?" + rawQuery
	}

	upstreamURL := host + fullPath
	upstreamURL = strings.ReplaceAll(upstreamURL, "?beta=true", "")

	if mode == config.ModeOpenAIResponses {
		upstreamURL = strings.ReplaceAll(upstreamURL, "messages", "responses")
	}

	upstreamURL = strings.ReplaceAll(upstreamURL, "claude/", "")

	for strings.Contains(upstreamURL, "//") {
		upstreamURL = strings.ReplaceAll(upstreamURL, "//", "/")
	}

	return scheme + "://" + upstreamURL
}

func splitEndpoint(endpoint string) (scheme, host, basePath string) {
	rest := endpoint

	if idx := strings.Index(rest, "://"); idx != -1 {
		scheme = rest[:idx]
		rest = rest[idx+3:]
	} else {
		scheme = "https"
	}

	if idx := strings.Index(rest, "/"); idx != -1 {
		host = rest[:idx]
		basePath = rest[idx:]
	} else {
		host = rest
		basePath = ""
	}

	basePath = strings.TrimSuffix(basePath, "/")

	return scheme, host, basePath
}

var hopByHopHeaders = map[string]bool{
	"host":           true,
	"authorization":  true,
	"content-length": true,
}

func copyRequestHeaders(req *http.Request, src http.Header) {
	for key, values := range src {
		if hopByHopHeaders[strings.ToLower(key)] {
			continue
		}

		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
}

func copyResponseHeaders(w http.ResponseWriter, resp *http.Response, dropEncoding bool) {
	for key, values := range resp.Header {
		lower := strings.ToLower(key)
		if lower == "content-length" {
			continue
		}

		if dropEncoding && lower == "content-encoding" {
			continue
		}

		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
}

// streamResponse forwards an event-stream upstream response
// frame-for-frame, flushing after every line so the client observes
// the same pacing as the upstream.
func (h *ProxyHandler) streamResponse(w http.ResponseWriter, resp *http.Response, logBody bool) {
	copyResponseHeaders(w, resp, false)
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if logBody && strings.HasPrefix(line, "data: ") {
			h.logger.Debug("sse frame", "data", strings.TrimPrefix(line, "data: "))
		}

		if _, err := io.WriteString(w, line+"\n"); err != nil {
			h.logger.Error("sse write failed", "error", err)
			return
		}

		if flusher != nil {
			flusher.Flush()
		}
	}

	if err := scanner.Err(); err != nil {
		h.logger.Error("sse stream error", "error", err)
	}
}

// bufferedResponse collects a non-streaming upstream response,
// gunzips it if compressed, translates it back to the Anthropic shape
// when the upstream spoke OpenAI Responses, and forwards it.
func (h *ProxyHandler) bufferedResponse(w http.ResponseWriter, resp *http.Response, mode config.Mode, logBody bool) {
	reader, err := decompressReader(resp)
	if err != nil {
		h.gatewayError(w, "decompress upstream response", err)
		return
	}

	raw, err := io.ReadAll(reader)
	if err != nil {
		h.gatewayError(w, "read upstream response", err)
		return
	}

	if mode == config.ModeOpenAIResponses {
		translated, terr := schema.OpenAIResponsesToAnthropic(raw, "")
		if terr != nil {
			h.logger.Error("translate response from openai responses", "error", terr)
		} else {
			raw = translated
		}
	}

	if logBody {
		logFullBody(h.logger, "response body", raw)
	}

	copyResponseHeaders(w, resp, true)
	w.WriteHeader(resp.StatusCode)
	w.Write(raw)
}

// decompressReader wraps resp.Body in a gzip or brotli decoder
// according to its Content-Encoding header, or passes it through
// unchanged for any other (or absent) encoding.
func decompressReader(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

// gatewayError logs err and reports a 502 to the client, matching the
// proxy's transient-upstream-failure contract.
func (h *ProxyHandler) gatewayError(w http.ResponseWriter, context string, err error) {
	h.logger.Error(context, "error", err)
	http.Error(w, "Bad Gateway", http.StatusBadGateway)
}
