package domain

// FeatureCount is the fixed length of a transaction feature vector.
// The ordering is significant and shared with persisted scalers:
//
//	0  amount
//	1  elapsed seconds
//	2  elapsed days
//	3  customer mean amount
//	4  customer transaction count
//	5  customer amount std
//	6  terminal mean amount
//	7  terminal transaction count
//	8  terminal fraud rate
//	9  amount anomaly |amount - customer mean|
//	10 sin time-of-day phase
//	11 cos time-of-day phase
//	12 sin day-of-week phase
//	13 cos day-of-week phase
const FeatureCount = 14

// Scaler holds per-feature mean and population standard deviation used
// for z-score normalization. It is fit once per training batch and then
// reused unmodified for every later batch; re-fitting on prediction
// inputs would make scores batch-dependent.
//
// Std entries are floored to 1 when a feature's variance is zero, so
// Transform never divides by zero. That column then normalizes to all
// zeros, which is the intended dead-zone behavior.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Len returns the number of features the scaler was fit on.
func (s *Scaler) Len() int {
	return len(s.Mean)
}
