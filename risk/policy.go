package risk

// Policy is the configured risk envelope. Every limit is a fraction of
// equity; absolute amounts are derived at evaluation time.
type Policy struct {
	// Per-trade risk band
	RiskPctBase float64 `json:"risk_pct_base" yaml:"risk_pct_base"` // 0.0075
	RiskPctMin  float64 `json:"risk_pct_min" yaml:"risk_pct_min"`   // 0.005
	RiskPctMax  float64 `json:"risk_pct_max" yaml:"risk_pct_max"`   // 0.01

	// Portfolio limits
	MaxOpenRiskPct   float64            `json:"max_open_risk_pct" yaml:"max_open_risk_pct"` // 0.035
	SectorCaps       map[string]float64 `json:"sector_caps,omitempty" yaml:"sector_caps,omitempty"`
	DefaultSectorCap float64            `json:"default_sector_cap" yaml:"default_sector_cap"` // 0.40
	MaxPositions     int                `json:"max_positions" yaml:"max_positions"`           // 5
	MaxDailyLossPct  float64            `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"` // 0.03

	// Stop placement
	StopATRMult        float64 `json:"stop_atr_mult" yaml:"stop_atr_mult"`                 // 2.5
	StopATRMultHighVol float64 `json:"stop_atr_mult_high_vol" yaml:"stop_atr_mult_high_vol"` // 1.5
	MinStopPct         float64 `json:"min_stop_pct" yaml:"min_stop_pct"`                   // 0.005
	AdoptStopPct       float64 `json:"adopt_stop_pct" yaml:"adopt_stop_pct"`               // 0.01

	// Adaptive sizing
	DrawdownThreshold float64 `json:"drawdown_threshold" yaml:"drawdown_threshold"` // 0.02
	DrawdownReduction float64 `json:"drawdown_reduction" yaml:"drawdown_reduction"` // 0.5
	SlopeThreshold    float64 `json:"slope_threshold" yaml:"slope_threshold"`       // 0.001 per day
	SlopeBoost        float64 `json:"slope_boost" yaml:"slope_boost"`               // 0.25
	SlopeLookback     int     `json:"slope_lookback" yaml:"slope_lookback"`         // 20 sessions

	// Slippage. Entries in symbols that slip more than the target are
	// shrunk, never grown, by at most the cap. A zero target disables it.
	TargetSlippageBps float64 `json:"target_slippage_bps" yaml:"target_slippage_bps"` // 5
	SlippageSizeCap   float64 `json:"slippage_size_cap" yaml:"slippage_size_cap"`     // 0.5
}

func DefaultPolicy() Policy {
	return Policy{
		RiskPctBase:        0.0075,
		RiskPctMin:         0.005,
		RiskPctMax:         0.01,
		MaxOpenRiskPct:     0.035,
		DefaultSectorCap:   0.40,
		MaxPositions:       5,
		MaxDailyLossPct:    0.03,
		StopATRMult:        2.5,
		StopATRMultHighVol: 1.5,
		MinStopPct:         0.005,
		AdoptStopPct:       0.01,
		DrawdownThreshold:  0.02,
		DrawdownReduction:  0.5,
		SlopeThreshold:     0.001,
		SlopeBoost:         0.25,
		SlopeLookback:      20,
		TargetSlippageBps:  5,
		SlippageSizeCap:    0.5,
	}
}

// Budget is the RiskBudget for one evaluation: percentages only.
type Budget struct {
	PerTradePct       float64
	TotalOpenRiskPct  float64
	SectorCaps        map[string]float64
	DefaultSectorCap  float64
	MaxPositions      int
	DailyLossLimitPct float64
}

// Budget derives the cycle's budget with the given per-trade percentage.
func (p Policy) Budget(perTradePct float64) Budget {
	return Budget{
		PerTradePct:       perTradePct,
		TotalOpenRiskPct:  p.MaxOpenRiskPct,
		SectorCaps:        p.SectorCaps,
		DefaultSectorCap:  p.DefaultSectorCap,
		MaxPositions:      p.MaxPositions,
		DailyLossLimitPct: p.MaxDailyLossPct,
	}
}

// SectorCap returns the cap for sector, falling back to the default.
func (b Budget) SectorCap(sector string) float64 {
	if c, ok := b.SectorCaps[sector]; ok {
		return c
	}
	return b.DefaultSectorCap
}
