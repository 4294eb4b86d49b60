package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runQueued runs the calls the snapshot left on the idle event queue, as the
// loop would after the caller gave up.
func runQueued(t *testing.T, s *Server) {
	t.Helper()
	for {
		select {
		case ev := <-s.events:
			require.Equal(t, evCall, ev.kind)
			ev.fn()
		default:
			return
		}
	}
}

func TestSnapshotAbandonedReturnsZero(t *testing.T) {
	s := newTestServer(t)
	alice := s.registerTest(t, "alice")
	alice.send("JOIN #room")
	alice.lines()

	// No loop is running: each call is queued, then the deadline passes
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	st, err := s.Stats(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Stats{}, st)

	channels, err := s.ChannelList(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, channels)

	clients, err := s.ClientList(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, clients)

	// The late closures fill their own copies only
	runQueued(t, s)
	assert.Equal(t, Stats{}, st)
	assert.Nil(t, channels)
	assert.Nil(t, clients)
}
