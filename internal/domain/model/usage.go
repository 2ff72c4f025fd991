package model

// Usage is the character quota reported by the upstream usage endpoint. Field
// names mirror the upstream response so it can be stored verbatim.
type Usage struct {
	CharacterCount int64 `json:"character_count"`
	CharacterLimit int64 `json:"character_limit"`
}

// Percent returns used/limit as a percentage; 0 when the limit is unknown.
func (u Usage) Percent() float64 {
	if u.CharacterLimit <= 0 {
		return 0
	}
	return float64(u.CharacterCount) / float64(u.CharacterLimit) * 100
}

// UsageLevel classifies quota consumption for display.
type UsageLevel string

const (
	UsageLevelOK       UsageLevel = "ok"
	UsageLevelWarning  UsageLevel = "warning"
	UsageLevelCritical UsageLevel = "critical"
)

// Level returns critical above 90%, warning above 50%, ok otherwise.
func (u Usage) Level() UsageLevel {
	pct := u.Percent()
	switch {
	case pct > 90:
		return UsageLevelCritical
	case pct > 50:
		return UsageLevelWarning
	default:
		return UsageLevelOK
	}
}
