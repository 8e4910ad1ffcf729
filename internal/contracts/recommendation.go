package contracts

import "time"

// RankedInstrument is one row of a recommendation ranking.
// Buffer marks names ranked inside the hold buffer beyond the picks;
// Held marks names the book holds after the run.
type RankedInstrument struct {
	Instrument string  `json:"instrument"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
	Selected   bool    `json:"selected"`
	Buffer     bool    `json:"buffer"`
	Held       bool    `json:"held"`
	Weight     float64 `json:"weight,omitempty"`
}

// Recommendation is the live Top-K pick of the latest signal date.
// Weights is the book after Orders; Orders moves the previous book there.
type Recommendation struct {
	StrategyID  string             `json:"strategy_id"`
	SignalDate  time.Time          `json:"signal_date"`
	GeneratedAt time.Time          `json:"generated_at"`
	TopK        []string           `json:"top_k"`
	Ranking     []RankedInstrument `json:"ranking"`
	Weights     TargetWeights      `json:"weights,omitempty"`
	Orders      []Order            `json:"orders,omitempty"`
	ConfigHash  string             `json:"config_hash,omitempty"`
}
