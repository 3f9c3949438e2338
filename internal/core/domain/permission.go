package domain

// PermissionState mirrors the location-capability subsystem's view of
// whether positions may be requested.
type PermissionState string

const (
	PermissionPrompt      PermissionState = "prompt"
	PermissionGranted     PermissionState = "granted"
	PermissionDenied      PermissionState = "denied"
	PermissionUnsupported PermissionState = "unsupported"
)

// Valid reports whether s is one of the known states.
func (s PermissionState) Valid() bool {
	switch s {
	case PermissionPrompt, PermissionGranted, PermissionDenied, PermissionUnsupported:
		return true
	}
	return false
}

// ResolutionState is the per-key lifecycle of a resolution session.
type ResolutionState string

const (
	ResolutionIdle      ResolutionState = "idle"
	ResolutionDetecting ResolutionState = "detecting"
	ResolutionSuccess   ResolutionState = "success"
	ResolutionError     ResolutionState = "error"
)

// AccuracyTier selects the acquisition strategy.
type AccuracyTier string

const (
	// TierLow is network based: fast, coarse.
	TierLow AccuracyTier = "low"
	// TierHigh is GPS based: slow, precise.
	TierHigh AccuracyTier = "high"
)
