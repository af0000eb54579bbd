package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Render("ignored\n", map[string]int{"rules": 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"rules": float64(3)}, resp.Data)
	assert.NotContains(t, buf.String(), "ignored")
}

func TestOutputFormatter_RenderText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Render("chat (ready, 3 rules)\n", struct{}{}))
	assert.Equal(t, "chat (ready, 3 rules)\n", buf.String())
}

func TestOutputFormatter_FailJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Fail(CodeTestFailed, "1 scenario(s) failed", "text", map[string]int{"failed": 1}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTestFailed, resp.Error.Code)
	assert.Equal(t, "1 scenario(s) failed", resp.Error.Message)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONDoesNotEscapeHTML(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Render("", map[string]string{"summary": "<steve> a & b"}))
	assert.Contains(t, buf.String(), "<steve> a & b")
}

func TestOutputFormatter_ErrorText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error(CodeLoadFailed, "chain is empty", map[string]string{"chain": "x"}))
	assert.Equal(t, "Error [E_LOAD]: chain is empty\n", buf.String())

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error(CodeLoadFailed, "chain is empty", "rules/x.txt"))
	assert.Contains(t, buf.String(), "Details: rules/x.txt")
}

func TestOutputFormatter_ErrorJSONWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	details := map[string]string{"file": "chat.txt", "line": "4"}
	require.NoError(t, formatter.Error(CodeCheckFailed, "include loop", details))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, map[string]any{"file": "chat.txt", "line": "4"}, resp.Error.Details)
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}

	formatter.VerboseLog("loaded %d rules", 3)
	assert.Empty(t, errOut.String())

	formatter.Verbose = true
	formatter.VerboseLog("loaded %d rules", 3)
	assert.Equal(t, "loaded 3 rules\n", errOut.String())
	assert.Empty(t, out.String(), "verbose lines never reach the JSON stream")
}

func TestOutputFormatter_GetErrWriterFallsBack(t *testing.T) {
	out := &bytes.Buffer{}
	formatter := &OutputFormatter{Writer: out}
	assert.Same(t, out, formatter.GetErrWriter())
}

func TestExitError(t *testing.T) {
	base := errors.New("boom")
	err := WrapExitError(ExitCommandError, "failed to load config", base)

	assert.Equal(t, "failed to load config: boom", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("outer: %w", err)))

	assert.Equal(t, "2 scenario(s) failed", NewExitError(ExitFailure, "2 scenario(s) failed").Error())
	assert.Equal(t, ExitFailure, GetExitCode(base))
}
