package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/search-parser/internal/model"
)

func TestWriteOutput_JSON(t *testing.T) {
	res := model.NewRunResult("越南 經濟")
	res.Success = append(res.Success, model.ParsedRecord{URL: "https://a.example.com/?x=1&y=2", Title: "標題"})
	res.Attempts = 1

	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "json", res))

	// HTML characters are not escaped.
	assert.Contains(t, buf.String(), "https://a.example.com/?x=1&y=2")

	var got model.RunResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "越南 經濟", got.Query)
	assert.Equal(t, 1, got.Attempts)
	assert.Empty(t, got.Failed)
}

func TestWriteOutput_YAML(t *testing.T) {
	res := model.NewRunResult("q")
	pub := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	res.Failed = append(res.Failed, model.ParsedRecord{URL: "https://b", Error: "timeout", Published: &pub})

	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "yaml", res))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "q", got["query"])
	assert.Len(t, got["failed"], 1)
	assert.Empty(t, got["success"])
}

func TestWriteOutput_Unsupported(t *testing.T) {
	err := writeOutput(&bytes.Buffer{}, "xml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}
