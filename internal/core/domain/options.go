package domain

import "time"

// Defaults for AcquireOptions.
const (
	DefaultTTL                 = 1800 * time.Second
	DefaultLowAccuracyTimeout  = 20 * time.Second
	DefaultHighAccuracyTimeout = 30 * time.Second
)

// TierOrder selects which accuracy tier is tried first. The zero value defers
// to whatever default the caller is merged with.
type TierOrder string

const (
	TierOrderDefault   TierOrder = ""
	TierOrderLowFirst  TierOrder = "low_first"
	TierOrderHighFirst TierOrder = "high_first"
)

// TierOrderOf maps a low-first preference onto a TierOrder.
func TierOrderOf(lowFirst bool) TierOrder {
	if lowFirst {
		return TierOrderLowFirst
	}
	return TierOrderHighFirst
}

// AcquireOptions configures the two-tier device acquisition.
type AcquireOptions struct {
	TierOrder           TierOrder     `json:"tier_order,omitempty"`
	LowAccuracyTimeout  time.Duration `json:"low_accuracy_timeout"`
	HighAccuracyTimeout time.Duration `json:"high_accuracy_timeout"`
	MaxStaleness        time.Duration `json:"max_staleness"`
}

// PreferLowAccuracyFirst reports whether the low tier runs first. Only an
// explicit TierOrderHighFirst turns it off.
func (o AcquireOptions) PreferLowAccuracyFirst() bool {
	return o.TierOrder != TierOrderHighFirst
}

// DefaultAcquireOptions returns the documented defaults.
func DefaultAcquireOptions() AcquireOptions {
	return AcquireOptions{
		TierOrder:           TierOrderLowFirst,
		LowAccuracyTimeout:  DefaultLowAccuracyTimeout,
		HighAccuracyTimeout: DefaultHighAccuracyTimeout,
	}
}

// WithDefaults fills every unset field from DefaultAcquireOptions.
func (o AcquireOptions) WithDefaults() AcquireOptions {
	if o.TierOrder != TierOrderHighFirst {
		o.TierOrder = TierOrderLowFirst
	}
	if o.LowAccuracyTimeout <= 0 {
		o.LowAccuracyTimeout = DefaultLowAccuracyTimeout
	}
	if o.HighAccuracyTimeout <= 0 {
		o.HighAccuracyTimeout = DefaultHighAccuracyTimeout
	}
	if o.MaxStaleness < 0 {
		o.MaxStaleness = 0
	}
	return o
}
