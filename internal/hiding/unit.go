package hiding

import (
	"fmt"
	"time"

	"github.com/linesight/linesight/internal/dwell"
	"github.com/linesight/linesight/internal/event"
	"github.com/linesight/linesight/internal/stats"
)

// Severity bands over the inspect-to-pack delay.
const (
	SeverityCritical = "CRITICAL" // 4h and up
	SeverityHigh     = "HIGH"     // 2-4h
	SeverityMedium   = "MEDIUM"   // 1-2h
	SeverityLow      = "LOW"      // under 1h
)

// Unit is one unit's inspect-to-pack delay, classified against the
// suspicion threshold.
type Unit struct {
	UnitID       string
	InspectTime  time.Time
	PackingTime  time.Time
	DelaySeconds float64
	DelayMinutes float64
	DelayHours   float64
	Status       string
	Severity     string
}

// MarshalJSON emits wire-format timestamps alongside the delay fields.
func (u Unit) MarshalJSON() ([]byte, error) {
	sev := ""
	if u.Severity != "" {
		sev = fmt.Sprintf(`,"severity":%q`, u.Severity)
	}
	return []byte(fmt.Sprintf(
		`{"unit_id":%q,"final_inspect_time":%q,"packing_time":%q,"delay_seconds":%g,"delay_minutes":%g,"delay_hours":%g,"status":%q%s}`,
		u.UnitID, event.FormatTime(u.InspectTime), event.FormatTime(u.PackingTime),
		u.DelaySeconds, u.DelayMinutes, u.DelayHours, u.Status, sev)), nil
}

// SeverityFor bands a delay into the fixed severity levels.
func SeverityFor(delaySeconds float64) string {
	switch hours := delaySeconds / 3600; {
	case hours >= 4:
		return SeverityCritical
	case hours >= 2:
		return SeverityHigh
	case hours >= 1:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Classify splits dwell pairs into suspicious and normal units against
// thresholdMinutes. Suspicious units carry a severity; input order is kept.
func Classify(pairs []dwell.Pair, thresholdMinutes int) (suspicious, normal []Unit) {
	thresholdSeconds := float64(thresholdMinutes * 60)
	for _, p := range pairs {
		delay := p.TTo.Sub(p.TFrom).Seconds()
		u := Unit{
			UnitID:       p.UnitID,
			InspectTime:  p.TFrom,
			PackingTime:  p.TTo,
			DelaySeconds: delay,
			DelayMinutes: stats.Round2(delay / 60),
			DelayHours:   stats.Round2(delay / 3600),
		}
		if delay > thresholdSeconds {
			u.Status = "SUSPICIOUS"
			u.Severity = SeverityFor(delay)
			suspicious = append(suspicious, u)
		} else {
			u.Status = "NORMAL"
			normal = append(normal, u)
		}
	}
	return suspicious, normal
}

func severityRank(s string) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}
