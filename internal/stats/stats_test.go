package stats

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens_Formula(t *testing.T) {
	assert.Equal(t, uint64(0), EstimateTokens(""))
	assert.Equal(t, uint64((7*2+6)/7), EstimateTokens("1234567"))
	assert.Equal(t, uint64((100*2+6)/7), EstimateTokens(string(make([]byte, 100))))
}

func TestAnalyze_InvalidJSONAttributesEverythingToUserNew(t *testing.T) {
	body := []byte("not json at all")

	b := Analyze(body)
	assert.Equal(t, EstimateTokens(string(body)), b.UserNew)
	assert.Equal(t, b.UserNew, b.Total)
	assert.Zero(t, b.System)
	assert.Zero(t, b.Assistant)
}

func TestAnalyze_LastRealUserMessageIsNew(t *testing.T) {
	body := []byte(`{"messages":[
		{"role":"user","content":"first question"},
		{"role":"assistant","content":"an answer"},
		{"role":"user","content":"second question"}
	]}`)

	b := Analyze(body)
	assert.Equal(t, EstimateTokens("second question"), b.UserNew)
	assert.Equal(t, EstimateTokens("first question"), b.UserHistory)
	assert.Equal(t, EstimateTokens("an answer"), b.Assistant)
}

func TestAnalyze_SystemReminderInUserMessageCountsAsSystem(t *testing.T) {
	body := []byte(`{"messages":[
		{"role":"user","content":"<system-reminder>be careful</system-reminder>"},
		{"role":"user","content":"real question"}
	]}`)

	b := Analyze(body)
	assert.Equal(t, EstimateTokens("real question"), b.UserNew)
	assert.Equal(t, EstimateTokens("<system-reminder>be careful</system-reminder>"), b.System)
	assert.Zero(t, b.UserHistory)
}

func TestAnalyze_SystemAndToolsFieldsCountAsSystem(t *testing.T) {
	body := []byte(`{"system":"be nice","tools":[{"name":"x"}],"messages":[{"role":"user","content":"hi"}]}`)

	b := Analyze(body)
	assert.Positive(t, b.System)
	assert.Equal(t, EstimateTokens("hi"), b.UserNew)
}

func TestAnalyze_ArrayContentConcatenatesTextBlocks(t *testing.T) {
	body := []byte(`{"messages":[{"role":"user","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}]}`)

	b := Analyze(body)
	assert.Equal(t, EstimateTokens("ab"), b.UserNew)
}

func TestAccountant_RecordAccumulatesAcrossCalls(t *testing.T) {
	a := New()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	a.Record(logger, []byte(`{"messages":[{"role":"user","content":"one"}]}`))
	a.Record(logger, []byte(`{"messages":[{"role":"user","content":"two"}]}`))

	assert.Equal(t, uint64(2), a.requestCount.Load())
	assert.Equal(t, EstimateTokens("one")+EstimateTokens("two"), a.userNewTokens.Load())
}
