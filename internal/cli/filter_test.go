package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Arguments(t *testing.T) {
	out, _, err := execute(t, "", "filter", "--rules-dir", testRulesDir, "--chain", "chat",
		"what a badword", "hello")
	require.NoError(t, err)

	expected := `<console> Original message cancelled.
|CHAT| SENT <console> hello
  → Hi there!
`
	assert.Equal(t, expected, out)
}

func TestFilter_Stdin(t *testing.T) {
	out, _, err := execute(t, "nothing to see\n\nbuy gold\n", "filter",
		"--rules-dir", testRulesDir, "--chain", "chat", "--player", "steve")
	require.NoError(t, err)

	expected := `|CHAT| PASS <steve> nothing to see
<steve> Original message cancelled.
`
	assert.Equal(t, expected, out)
}

func TestFilter_JSON(t *testing.T) {
	out, _, err := execute(t, "", "filter", "--rules-dir", testRulesDir, "--chain", "chat",
		"--format", "json", "--player", "alex", "what a badword", "hi")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   FilterOutput `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "chat", resp.Data.Chain)
	assert.Equal(t, 1, resp.Data.Cancelled)
	require.Len(t, resp.Data.Results, 2)

	first := resp.Data.Results[0]
	assert.Equal(t, "alex", first.Player)
	assert.Equal(t, "CHAT", first.Listener)
	assert.Equal(t, "badword", first.Pattern)
	assert.True(t, first.Cancelled)
	assert.True(t, first.Logged)
	assert.NotEmpty(t, first.ID)

	second := resp.Data.Results[1]
	assert.Empty(t, second.Pattern)
	assert.False(t, second.Cancelled)
	assert.Equal(t, "hi", second.Message)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestFilter_StrictFailsOnCancel(t *testing.T) {
	_, _, err := execute(t, "", "filter", "--rules-dir", testRulesDir, "--chain", "chat",
		"--strict", "what a badword")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 message(s) cancelled")

	_, _, err = execute(t, "", "filter", "--rules-dir", testRulesDir, "--chain", "chat",
		"--strict", "hello")
	assert.NoError(t, err)
}

func TestFilter_VerbosePrintsMetrics(t *testing.T) {
	_, stderr, err := execute(t, "", "filter", "--rules-dir", testRulesDir, "--chain", "chat",
		"-v", "what a badword")
	require.NoError(t, err)
	assert.Contains(t, stderr, "chainfilter_events_total")
	assert.Contains(t, stderr, "chainfilter_events_cancelled_total")
	assert.Contains(t, stderr, "chain=chat")
	assert.Contains(t, stderr, "loaded chain")
}

func TestFilter_LoadFailure(t *testing.T) {
	_, _, err := execute(t, "", "filter", "--rules-dir", testRulesDir, "--chain", "nope", "hi")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load chain nope")
}

func TestFilter_StoresEventsAndLog(t *testing.T) {
	db := filepath.Join(t.TempDir(), "events.db")

	_, _, err := execute(t, "", "filter", "--rules-dir", testRulesDir, "--chain", "chat",
		"--db", db, "--player", "steve", "what a badword", "hello")
	require.NoError(t, err)

	out, _, err := execute(t, "", "log", "--db", db, "--chain", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "cancelled,logged")
	assert.Contains(t, out, "sent")
	assert.Contains(t, out, "|CHAT| MATCH <steve> what a badword")
	assert.Contains(t, out, "Rule: R1 Profanity")
	assert.Contains(t, out, "<steve> Original message cancelled.")
	assert.Contains(t, out, "Permissions: filter.trader")
}

func TestReadMessages_LongLine(t *testing.T) {
	long := strings.Repeat("a", 200*1024)

	msgs, err := readMessages(strings.NewReader("hi\n\n" + long + "\n"))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0])
	assert.Len(t, msgs[1], len(long))
}

func TestFilter_LongStdinMessage(t *testing.T) {
	long := "badword " + strings.Repeat("x", 100*1024)

	out, _, err := execute(t, long+"\nhello\n", "filter", "--rules-dir", testRulesDir, "--chain", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "<console> Original message cancelled.")
	assert.Contains(t, out, "|CHAT| SENT <console> hello")
}
