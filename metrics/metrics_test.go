package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CS-5/VoiceTimeBot/ledger"
)

var _ ledger.Observer = (*Collectors)(nil)

type memStore struct{ data map[string]float64 }

func (m *memStore) Load() (map[string]float64, error) { return m.data, nil }
func (m *memStore) Save(totals map[string]float64) error {
	m.data = totals
	return nil
}

func TestCollectorsTrackLedger(t *testing.T) {
	c := New(nil)
	l := ledger.New(&memStore{data: map[string]float64{"old": 10}}, ledger.WithObserver(c))

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.Enter("a", start)
	l.Enter("b", start)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.ActiveGauge))

	l.Tick(start.Add(30 * time.Second))
	l.Leave("a", start.Add(45*time.Second))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.ActiveGauge))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.TrackedGauge))
	assert.InDelta(t, 75.0, testutil.ToFloat64(c.FoldedSeconds), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Flushes))
}

func TestFlushed(t *testing.T) {
	c := New(nil)

	c.Flushed(nil)
	c.Flushed(errors.New("disk full"))
	c.Flushed(errors.New("disk full"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Flushes))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.FlushFailures))
}

func TestVoiceConnectByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.VoiceConnect(OutcomeConnected)
	c.VoiceConnect(OutcomeFailed)
	c.VoiceConnect(OutcomeFailed)

	expected := `
# HELP voicetime_voice_connects_total Voice channel connection attempts by outcome
# TYPE voicetime_voice_connects_total counter
voicetime_voice_connects_total{outcome="connected"} 1
voicetime_voice_connects_total{outcome="failed"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "voicetime_voice_connects_total"))
}

func TestFoldedIgnoresZero(t *testing.T) {
	c := New(nil)

	c.Folded(0)
	c.Folded(-1)
	assert.Zero(t, testutil.ToFloat64(c.FoldedSeconds))
}
