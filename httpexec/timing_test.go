package httpexec

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestPhasesChargeRunningStage(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ph := newPhases(clock)

	ph.beginHop()
	clock.Advance(10 * time.Millisecond)
	timing := ph.timing()
	require.Equal(t, 10*time.Millisecond, timing.DNS)
	require.Zero(t, timing.Handshake)

	ph.resolved()
	clock.Advance(20 * time.Millisecond)
	timing = ph.timing()
	require.Equal(t, 10*time.Millisecond, timing.DNS)
	require.Equal(t, 20*time.Millisecond, timing.Handshake)

	ph.connected()
	clock.Advance(30 * time.Millisecond)
	ph.hopDone()
	clock.Advance(time.Second)

	timing = ph.timing()
	require.Equal(t, 30*time.Millisecond, timing.Transfer)
	require.Equal(t, 1060*time.Millisecond, timing.Total)
}

func TestPhasesAccumulateAcrossHops(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ph := newPhases(clock)

	for i := 0; i < 2; i++ {
		ph.beginHop()
		clock.Advance(time.Millisecond)
		ph.resolved()
		clock.Advance(2 * time.Millisecond)
		ph.connected()
		clock.Advance(3 * time.Millisecond)
		ph.hopDone()
	}

	timing := ph.timing()
	require.Equal(t, 2*time.Millisecond, timing.DNS)
	require.Equal(t, 4*time.Millisecond, timing.Handshake)
	require.Equal(t, 6*time.Millisecond, timing.Transfer)
	require.Equal(t, 12*time.Millisecond, timing.Total)
}

func TestParseStatusLine(t *testing.T) {
	code, err := parseStatusLine([]byte("HTTP/1.1 404 Not Found"))
	require.NoError(t, err)
	require.Equal(t, 404, code)

	code, err = parseStatusLine([]byte("HTTP/1.0 200"))
	require.NoError(t, err)
	require.Equal(t, 200, code)

	for _, line := range []string{"HTTP/2 200 OK", "HTTP/1.1 20 OK", "HTTP/1.1 abc OK", "ICY 200 OK"} {
		_, err := parseStatusLine([]byte(line))
		require.ErrorIs(t, err, ErrMalformedReply, line)
	}
}
