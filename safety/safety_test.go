package safety

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)

func TestKillSwitchEngagesOnThreeErrorsInWindow(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig().KillSwitch
	var k KillSwitch

	assert.False(t, k.RecordError(t0, cfg))
	assert.False(t, k.RecordError(t0.Add(4*time.Minute), cfg))
	assert.True(t, k.RecordError(t0.Add(9*time.Minute), cfg))
	assert.True(t, k.Engaged)
	assert.True(t, k.EngagedAt.Equal(t0.Add(9*time.Minute)))

	// further errors do not re-trigger
	assert.False(t, k.RecordError(t0.Add(10*time.Minute), cfg))
}

func TestKillSwitchRollingWindow(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig().KillSwitch
	var k KillSwitch

	k.RecordError(t0, cfg)
	k.RecordError(t0.Add(5*time.Minute), cfg)
	assert.False(t, k.RecordError(t0.Add(10*time.Minute), cfg), "first error aged out")
	assert.False(t, k.Engaged)
	assert.Len(t, k.Errors, 2)

	assert.True(t, k.RecordError(t0.Add(11*time.Minute), cfg))
}

func TestKillSwitchOnlyOperatorClears(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig().KillSwitch
	var s State
	for i := 0; i < 3; i++ {
		s.KillSwitch.RecordError(t0.Add(time.Duration(i)*time.Minute), cfg)
	}
	require.True(t, s.KillSwitch.Engaged)

	// new session and the passage of time leave it engaged
	s = s.NewSession(100000)
	assert.True(t, s.KillSwitch.Engaged)
	assert.True(t, Gate(s).BlockEntries)
	assert.True(t, Gate(s).Flatten)

	// survives a serialize/deserialize round trip
	data, err := json.Marshal(s)
	require.NoError(t, err)
	var reloaded State
	require.NoError(t, json.Unmarshal(data, &reloaded))
	assert.True(t, reloaded.KillSwitch.Engaged)

	reloaded.KillSwitch.Clear(t0.Add(24*time.Hour), "ops")
	assert.False(t, reloaded.KillSwitch.Engaged)
	assert.Empty(t, reloaded.KillSwitch.Errors)
	assert.Equal(t, "ops", reloaded.KillSwitch.ClearedBy)
	assert.False(t, Gate(reloaded).BlockEntries)
}

func TestCircuitBreaker(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig().Circuit
	var c CircuitBreaker

	calm := CircuitInputs{Volatility: 18, HasVolatility: true, BenchATRPct: 0.002, BenchATRMedian: 0.0015, HasBenchmark: true}
	assert.False(t, c.Evaluate(calm, cfg, t0))
	assert.False(t, c.Engaged)

	vix := calm
	vix.Volatility = 31
	assert.True(t, c.Evaluate(vix, cfg, t0))
	assert.True(t, c.Engaged)
	assert.Contains(t, c.Reason, "volatility index")

	assert.True(t, c.Evaluate(calm, cfg, t0.Add(5*time.Minute)))
	assert.False(t, c.Engaged)

	atr := calm
	atr.BenchATRPct = 0.0031
	assert.True(t, c.Evaluate(atr, cfg, t0))
	assert.Contains(t, c.Reason, "benchmark atr%")

	// exactly at the threshold is not above it
	var edge CircuitBreaker
	at := calm
	at.Volatility = 30
	at.BenchATRPct = 0.003
	assert.False(t, edge.Evaluate(at, cfg, t0))
}

func TestCircuitBreakerHysteresis(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig().Circuit
	cfg.ClearCycles = 3
	var c CircuitBreaker

	hot := CircuitInputs{Volatility: 35, HasVolatility: true}
	calm := CircuitInputs{Volatility: 20, HasVolatility: true}

	c.Evaluate(hot, cfg, t0)
	assert.False(t, c.Evaluate(calm, cfg, t0))
	assert.False(t, c.Evaluate(calm, cfg, t0))
	assert.True(t, c.Engaged)

	// a relapse resets the streak
	c.Evaluate(hot, cfg, t0)
	assert.Equal(t, 0, c.CalmStreak)
	c.Evaluate(calm, cfg, t0)
	c.Evaluate(calm, cfg, t0)
	assert.True(t, c.Evaluate(calm, cfg, t0))
	assert.False(t, c.Engaged)
}

func TestCircuitBreakerMissingInputsDoNotTrigger(t *testing.T) {
	t.Parallel()

	var c CircuitBreaker
	assert.False(t, c.Evaluate(CircuitInputs{Volatility: 99}, DefaultConfig().Circuit, t0))
	assert.False(t, c.Engaged)
}

func TestDailyLossExactThreshold(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	s := State{}.NewSession(100000)

	dailyBreached, _ := s.RecordTrade(-1000, cfg)
	assert.False(t, dailyBreached)
	dailyBreached, _ = s.RecordTrade(-2000, cfg)
	assert.True(t, dailyBreached)
	assert.InDelta(t, -0.03, s.DailyLoss.PnLPct, 1e-12)

	g := Gate(s)
	assert.True(t, g.BlockEntries)
	assert.True(t, g.Flatten)
	assert.True(t, g.Has(ReasonDailyLoss))

	// a later win does not lift the block within the session
	s.RecordTrade(5000, cfg)
	assert.True(t, Gate(s).BlockEntries)

	s = s.NewSession(98000)
	assert.False(t, Gate(s).BlockEntries)
	assert.Equal(t, 98000.0, s.DailyLoss.StartEquity)
}

func TestDailyLossCountsPartials(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	s := State{}.NewSession(10000)
	assert.True(t, s.RecordPartial(-300, cfg))
	assert.Equal(t, 0, s.ConsecutiveLosses.Count)
}

func TestConsecutiveLosses(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	s := State{}.NewSession(1e9)

	s.RecordTrade(-10, cfg)
	s.RecordTrade(-10, cfg)
	s.RecordTrade(0, cfg) // breakeven resets
	assert.Equal(t, 0, s.ConsecutiveLosses.Count)

	s.RecordTrade(-10, cfg)
	s.RecordTrade(-10, cfg)
	_, paused := s.RecordTrade(-10, cfg)
	assert.True(t, paused)

	g := Gate(s)
	assert.True(t, g.BlockEntries)
	assert.False(t, g.Flatten)
	assert.Equal(t, []Reason{ReasonConsecutiveLosses}, g.Reasons)

	s = s.NewSession(1e9)
	assert.False(t, Gate(s).BlockEntries)
}

func TestGateComposesIndependently(t *testing.T) {
	t.Parallel()

	var s State
	assert.Equal(t, Decision{}, Gate(s))
	assert.Equal(t, "open", Gate(s).String())

	s.CircuitBreaker.Engaged = true
	s.KillSwitch.Engaged = true
	g := Gate(s)
	assert.Equal(t, []Reason{ReasonKillSwitch, ReasonCircuitBreaker}, g.Reasons)
	assert.True(t, g.Flatten)
	assert.Equal(t, "blocked: kill_switch,circuit_breaker (flatten)", g.String())

	s.KillSwitch.Engaged = false
	g = Gate(s)
	assert.True(t, g.BlockEntries)
	assert.False(t, g.Flatten)
}
