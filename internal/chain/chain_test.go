package chain

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainfilter/internal/logging"
	"github.com/roach88/chainfilter/internal/rule"
)

func TestRegistry_GetOrCreateReturnsSameInstance(t *testing.T) {
	reg := NewRegistry(MapSource{})

	a1 := reg.GetOrCreate("a")
	a2 := reg.GetOrCreate("a")
	b := reg.GetOrCreate("b")

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.Equal(t, Unloaded, a1.State())
	assert.Equal(t, []string{"a", "b"}, reg.Names())

	got, ok := reg.Lookup("b")
	require.True(t, ok)
	assert.Same(t, b, got)
	_, ok = reg.Lookup("c")
	assert.False(t, ok)
}

func TestRegistry_DefaultLogging(t *testing.T) {
	reg := NewRegistry(MapSource{})
	require.NotNil(t, reg.Logging())
	assert.Equal(t, logging.DebugOff, reg.Logging().DebugMode())
}

func TestLoadConfigFile_SourceNotFound(t *testing.T) {
	reg, _ := newTestRegistry(t, MapSource{})
	c := reg.GetOrCreate("missing")

	err := c.LoadConfigFile()

	require.Error(t, err)
	assert.True(t, IsLoadError(err, ErrCodeSourceNotFound))
	assert.ErrorIs(t, err, ErrSourceNotFound)
	assert.Equal(t, Unloaded, c.State())
}

func TestLoadConfigFile_PublishesPermissionsOnce(t *testing.T) {
	src := MapSource{
		"main": "match a\nignore permission filter.bypass\ninclude extra\n",
		"extra": "match b\nrequire permission filter.strict\n" +
			"match c\nignore permission filter.bypass\n",
	}
	sink := &recordingSink{}
	reg := NewRegistry(src, WithPermissionSink(sink))

	require.NoError(t, reg.GetOrCreate("main").LoadConfigFile())

	require.Len(t, sink.calls, 1, "included chains do not publish separately")
	assert.Equal(t, []string{"filter.bypass", "filter.strict"}, sink.calls[0])
}

func TestLoadConfigFile_FailureDoesNotPublish(t *testing.T) {
	sink := &recordingSink{}
	reg := NewRegistry(MapSource{"empty": "# nothing\n"}, WithPermissionSink(sink))

	err := reg.GetOrCreate("empty").LoadConfigFile()

	assert.True(t, IsLoadError(err, ErrCodeEmptyChain))
	assert.Empty(t, sink.calls)
}

func TestLoadConfigFile_ReloadDiscardsOldEntries(t *testing.T) {
	src := MapSource{"main": "match a\nmatch b\nmatch c\n"}
	reg, _ := newTestRegistry(t, src)
	c := reg.GetOrCreate("main")

	require.NoError(t, c.LoadConfigFile())
	require.Equal(t, 3, c.Len())

	src["main"] = "match z\n"
	require.NoError(t, c.LoadConfigFile())
	assert.Equal(t, 1, c.Len())
}

func TestInclude_AppendsSharedChain(t *testing.T) {
	src := MapSource{
		"main":   "match a\ninclude common\nmatch b\n",
		"common": "match x\nmatch y\n",
	}
	reg, _ := newTestRegistry(t, src)
	c := reg.GetOrCreate("main")

	require.NoError(t, c.LoadConfigFile())

	entries := c.Entries()
	require.Len(t, entries, 3)
	inc, ok := entries[1].(*Chain)
	require.True(t, ok)
	assert.Same(t, reg.GetOrCreate("common"), inc)
	assert.Equal(t, Ready, inc.State())
	assert.Equal(t, 4, c.RuleCount())
}

func TestInclude_CycleSkipsBackEdge(t *testing.T) {
	src := MapSource{
		"a": "match x\ninclude b\n",
		"b": "match y\ninclude a\n",
	}
	reg, rec := newTestRegistry(t, src)
	a := reg.GetOrCreate("a")

	require.NoError(t, a.LoadConfigFile())

	assert.Equal(t, 1, rec.Count("recursion loop detected"))
	w, _ := rec.Find("recursion loop detected")
	assert.Equal(t, "b", w.Attrs["chain"])
	assert.Equal(t, "a", w.Attrs["include"])
	assert.Equal(t, int64(2), w.Attrs["line"])

	b := reg.GetOrCreate("b")
	require.Equal(t, 2, a.Len())
	assert.Same(t, b, a.Entries()[1])
	require.Equal(t, 1, b.Len(), "b omits the cyclic include")
	_, isRule := b.Entries()[0].(*rule.Rule)
	assert.True(t, isRule)

	assert.Equal(t, Ready, a.State())
	assert.Equal(t, Ready, b.State())
}

func TestInclude_SelfInclude(t *testing.T) {
	reg, rec := newTestRegistry(t, MapSource{"a": "match x\ninclude a\nmatch y\n"})
	a := reg.GetOrCreate("a")

	require.NoError(t, a.LoadConfigFile())
	assert.Equal(t, 1, rec.Count("recursion loop detected"))
	assert.Equal(t, 2, a.Len())
}

func TestInclude_CycleOnlyChainFailsToInclude(t *testing.T) {
	src := MapSource{
		"a": "match x\ninclude b\n",
		"b": "include a\n",
	}
	reg, rec := newTestRegistry(t, src)
	a := reg.GetOrCreate("a")

	require.NoError(t, a.LoadConfigFile())

	assert.Equal(t, 1, rec.Count("recursion loop detected"))
	assert.Equal(t, 1, rec.Count("failed to include chain"))
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, Unloaded, reg.GetOrCreate("b").State(), "loading flag is cleared on failure")
}

func TestInclude_MissingChainWarns(t *testing.T) {
	reg, rec := newTestRegistry(t, MapSource{"main": "include nowhere\nmatch a\n"})
	c := reg.GetOrCreate("main")

	require.NoError(t, c.LoadConfigFile())

	assert.Equal(t, 1, c.Len())
	w, ok := rec.Find("failed to include chain")
	require.True(t, ok)
	assert.Equal(t, "main", w.Attrs["chain"])
	assert.Equal(t, "nowhere", w.Attrs["include"])
	assert.Equal(t, int64(1), w.Attrs["line"])
}

func TestInclude_ForcesReloadOfReadyChain(t *testing.T) {
	src := MapSource{
		"main":   "include common\n",
		"common": "match old\n",
	}
	reg, _ := newTestRegistry(t, src)
	common := reg.GetOrCreate("common")
	require.NoError(t, common.LoadConfigFile())
	require.Equal(t, Ready, common.State())

	src["common"] = "match new1\nmatch new2\n"
	require.NoError(t, reg.GetOrCreate("main").LoadConfigFile())

	rules := rulesOf(t, common)
	require.Len(t, rules, 2)
	assert.Equal(t, "new1", rules[0].Source())
}

func TestInclude_DiamondSharesInstance(t *testing.T) {
	src := MapSource{
		"top":   "include left\ninclude right\n",
		"left":  "match l\ninclude base\n",
		"right": "match r\ninclude base\n",
		"base":  "match b\nignore permission p.base\n",
	}
	reg, rec := newTestRegistry(t, src)
	top := reg.GetOrCreate("top")

	require.NoError(t, top.LoadConfigFile())

	left := reg.GetOrCreate("left").Entries()
	right := reg.GetOrCreate("right").Entries()
	assert.Same(t, left[1], right[1])
	assert.Equal(t, 4, top.RuleCount())
	assert.Equal(t, []string{"p.base"}, top.Permissions())
	assert.Zero(t, rec.Count("recursion loop detected"))
}

func TestPermissions_UnionAcrossNesting(t *testing.T) {
	src := MapSource{
		"main": "match a\nignore permission z.perm a.perm\ninclude mid\n",
		"mid":  "match b\nrequire permission m.perm\ninclude leaf\n",
		"leaf": "match c\nignore permission a.perm\nmatch d\nignore permission l.perm\n",
	}
	reg, _ := newTestRegistry(t, src)
	c := reg.GetOrCreate("main")
	require.NoError(t, c.LoadConfigFile())

	assert.Equal(t, []string{"a.perm", "l.perm", "m.perm", "z.perm"}, c.Permissions())
}

func TestApply_UnloadedChainIsInvalid(t *testing.T) {
	reg, _ := newTestRegistry(t, MapSource{"main": "match a\n"})
	c := reg.GetOrCreate("main")

	err := c.Apply(chatState("a"))
	require.Error(t, err)
	assert.True(t, IsInvalidChain(err))

	require.NoError(t, c.LoadConfigFile())
	require.NoError(t, c.Apply(chatState("a")))

	c.Reset()
	assert.True(t, IsInvalidChain(c.Apply(chatState("a"))))
}

func TestApply_StopHaltsTraversal(t *testing.T) {
	src := MapSource{"main": "match hello\nthen abort\nmatch hello\nthen deny\n"}
	reg, _ := newTestRegistry(t, src)
	c := reg.GetOrCreate("main")
	require.NoError(t, c.LoadConfigFile())

	st := chatState("hello")
	require.NoError(t, c.Apply(st))

	assert.True(t, st.Stop)
	assert.False(t, st.Cancel, "second rule never ran")
	assert.Len(t, st.LogMessages(), 1)
}

func TestApply_StopInsideIncludeHaltsParent(t *testing.T) {
	src := MapSource{
		"main":  "match hello\ninclude inner\nmatch hello\nthen deny\n",
		"inner": "match hello\nthen abort\nmatch hello\nthen replace bye\n",
	}
	reg, _ := newTestRegistry(t, src)
	c := reg.GetOrCreate("main")
	require.NoError(t, c.LoadConfigFile())

	st := chatState("hello")
	require.NoError(t, c.Apply(st))

	assert.True(t, st.Stop)
	assert.False(t, st.Cancel)
	assert.Equal(t, "hello", st.Message.Plain())
	assert.Len(t, st.LogMessages(), 2)
}

func TestApply_LaterRulesSeeRewrittenMessage(t *testing.T) {
	src := MapSource{"main": "match darn\nthen replace heck\nmatch heck\nthen deny\n"}
	reg, _ := newTestRegistry(t, src)
	c := reg.GetOrCreate("main")
	require.NoError(t, c.LoadConfigFile())

	st := chatState("darn")
	require.NoError(t, c.Apply(st))

	assert.True(t, st.Cancel)
	assert.Equal(t, "(?i)heck", st.Pattern.String())
}

func TestApply_SkipsIncludeThatLaterFailedReload(t *testing.T) {
	src := MapSource{
		"main":   "match a\ninclude common\nmatch c\nthen deny\n",
		"common": "match b\n",
	}
	reg, _ := newTestRegistry(t, src)
	c := reg.GetOrCreate("main")
	require.NoError(t, c.LoadConfigFile())

	src["common"] = "# emptied\n"
	require.Error(t, reg.GetOrCreate("common").LoadConfigFile())

	st := chatState("c")
	require.NoError(t, c.Apply(st))
	assert.True(t, st.Cancel)
}

func TestExecute_MatchWritesSummaryToDebugLog(t *testing.T) {
	src := MapSource{"main": "match hello\nthen replace hi\n"}
	reg, rec := newTestRegistry(t, src, logging.WithDebugMode(logging.DebugHigh))
	c := reg.GetOrCreate("main")
	require.NoError(t, c.LoadConfigFile())

	st := chatState("hello world")
	require.NoError(t, c.Execute(context.Background(), st))

	trace, ok := rec.Find("last match")
	require.True(t, ok)
	assert.Equal(t, "hello", trace.Attrs["pattern"])
	assert.Equal(t, "hello world", trace.Attrs["original"])
	assert.Equal(t, "hi world", trace.Attrs["current"])
	assert.Equal(t, false, trace.Attrs["deny"])

	assert.Equal(t, 1, rec.Count("|CHAT| MATCH <steve> hello world"))
	sent, ok := rec.Find("|CHAT| SENT <steve> hi world")
	require.True(t, ok)
	assert.Equal(t, "low", sent.Attrs["debug"])
	assert.Zero(t, st.PendingLogMessages(), "log messages are drained")
}

func TestExecute_CancelledGoesToRuleLog(t *testing.T) {
	src := MapSource{"main": "match badword\nthen deny\nthen log\n"}
	rw := &ruleLines{}
	reg, rec := newTestRegistry(t, src, logging.WithRuleLogWriter(rw), logging.WithRuleLevel(slog.LevelWarn))
	c := reg.GetOrCreate("main")
	require.NoError(t, c.LoadConfigFile())

	st := chatState("what a badword")
	require.NoError(t, c.Execute(context.Background(), st))

	assert.Equal(t, []string{
		"|CHAT| MATCH <steve> what a badword",
		"<steve> Original message cancelled.",
	}, rw.lines)
	assert.Contains(t, rec.Messages(slog.LevelWarn), "<steve> Original message cancelled.")
}

func TestExecute_NoMatchIsQuiet(t *testing.T) {
	src := MapSource{"main": "match badword\nthen deny\n"}
	reg, rec := newTestRegistry(t, src, logging.WithDebugMode(logging.DebugHigh))
	c := reg.GetOrCreate("main")
	require.NoError(t, c.LoadConfigFile())
	before := len(rec.Records())

	st := chatState("all good")
	require.NoError(t, c.Execute(context.Background(), st))

	records := rec.Records()[before:]
	require.Len(t, records, 1)
	assert.Equal(t, "no match", records[0].Message)
	assert.Equal(t, "high", records[0].Attrs["debug"])
}

func TestExecute_DebugOffEmitsNothingWithoutLogFlag(t *testing.T) {
	src := MapSource{"main": "match hello\n"}
	reg, rec := newTestRegistry(t, src)
	c := reg.GetOrCreate("main")
	require.NoError(t, c.LoadConfigFile())
	before := len(rec.Records())

	require.NoError(t, c.Execute(context.Background(), chatState("hello")))
	assert.Len(t, rec.Records(), before)
}

func TestExecute_UnloadedChain(t *testing.T) {
	reg, _ := newTestRegistry(t, MapSource{})
	err := reg.GetOrCreate("nope").Execute(context.Background(), chatState("x"))
	assert.True(t, IsInvalidChain(err))
}

func TestSummary(t *testing.T) {
	st := chatState("hello")
	assert.Empty(t, Summary(st))

	st.Pattern = rule.New("hello").Pattern()
	assert.Equal(t, "|CHAT| SENT <steve> hello", Summary(st))

	st.Cancel = true
	assert.Equal(t, "<steve> Original message cancelled.", Summary(st))
}

type ruleLines struct {
	lines []string
}

func (r *ruleLines) WriteRuleLog(_ context.Context, _ string, line string) error {
	r.lines = append(r.lines, line)
	return nil
}
