package chain

import (
	"testing"

	"github.com/roach88/chainfilter/internal/event"
	"github.com/roach88/chainfilter/internal/logging"
	"github.com/roach88/chainfilter/internal/testutil"
)

// recordingSink captures every AddPermissions call.
type recordingSink struct {
	calls [][]string
}

func (s *recordingSink) AddPermissions(perms []string) {
	s.calls = append(s.calls, perms)
}

// newTestRegistry builds a registry over in-memory sources with a log recorder.
func newTestRegistry(t *testing.T, src Source, opts ...logging.Option) (*Registry, *testutil.LogRecorder) {
	t.Helper()
	rec := testutil.NewLogRecorder()
	reg := NewRegistry(src, WithLogging(logging.New(rec.Logger(), opts...)))
	return reg, rec
}

func chatState(text string) *event.State {
	return event.NewState("evt-0001", "steve", event.ListenerName("CHAT"), text)
}
