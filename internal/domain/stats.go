package domain

// CustomerStats is a per-customer summary computed from one batch.
// Value snapshot: recomputed whenever the batch changes, never updated
// in place.
type CustomerStats struct {
	CustomerID string  `json:"customerId"`
	Count      int     `json:"count"`
	MeanAmount float64 `json:"meanAmount"`
	StdAmount  float64 `json:"stdAmount"` // population standard deviation
}

// TerminalStats is a per-terminal summary computed from one batch.
type TerminalStats struct {
	TerminalID string  `json:"terminalId"`
	Count      int     `json:"count"`
	MeanAmount float64 `json:"meanAmount"`

	// FraudRate is the fraction of labeled-fraud transactions at the
	// terminal. FraudRateKnown is false when no row at the terminal
	// carried a ground-truth label; an unknown rate is a distinct state
	// from a rate observed to be zero.
	FraudRate      float64 `json:"fraudRate"`
	FraudRateKnown bool    `json:"fraudRateKnown"`
}

// StatsSnapshot bundles the per-entity aggregates of one batch. It is
// read-only once built and safe for concurrent use.
type StatsSnapshot struct {
	Customers map[string]CustomerStats `json:"customers"`
	Terminals map[string]TerminalStats `json:"terminals"`
}

// Customer looks up stats for a customer id.
func (s *StatsSnapshot) Customer(id string) (CustomerStats, bool) {
	cs, ok := s.Customers[id]
	return cs, ok
}

// Terminal looks up stats for a terminal id.
func (s *StatsSnapshot) Terminal(id string) (TerminalStats, bool) {
	ts, ok := s.Terminals[id]
	return ts, ok
}
