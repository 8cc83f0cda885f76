package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSONBlock(t *testing.T) {
	cases := map[string]string{
		"[1,2]":                        "[1,2]",
		"```json\n[{\"a\":1}]\n```":    `[{"a":1}]`,
		"```\n[{\"a\":1}]\n```":        `[{"a":1}]`,
		"  ```JSON\n[]\n```  ":         "[]",
		"```[{\"a\": 1}]```":           `[{"a": 1}]`,
		"here you go: [1]":             "here you go: [1]",
		"```json[{\"a\":1}]```":        `[{"a":1}]`,
		"```JSON {\"a\":1}```":         `{"a":1}`,
		"```true```":                   "true",
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanJSONBlock(in), in)
	}
}

func TestExtractTextFromResponse(t *testing.T) {
	_, err := extractTextFromResponse(&genai.GenerateContentResponse{})
	require.Error(t, err)

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text("[{"), genai.Text("}]")}},
	}}}
	text, err := extractTextFromResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "[{}]", text)
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{}.GenerateJSON(context.Background(), "p")
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = NewGeminiClient(context.Background(), Config{})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}
