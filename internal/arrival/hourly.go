package arrival

import (
	"fmt"
	"time"

	"github.com/linesight/linesight/internal/event"
	"github.com/linesight/linesight/internal/stats"
)

// HourPerformance is one active hour of a day's arrival analysis.
type HourPerformance struct {
	Hour                  int                        `json:"hour"`
	TotalExpectedArrivals int                        `json:"total_expected_arrivals"`
	DelayedUnits          int                        `json:"delayed_units"`
	NotCompletedUnits     int                        `json:"not_completed_units"`
	ActualUnitsTotal      int                        `json:"actual_units_total"`
	HeldUnitsTotal        int                        `json:"held_units_total"`
	OverallDelayRate      float64                    `json:"overall_delay_rate"`
	CompletionRate        float64                    `json:"completion_rate"`
	StationPerformance    map[string]StationAnalysis `json:"station_performance"`
	HeldUnits             map[string][]HeldArrival   `json:"held_units"`
}

// DayPerformance is an hour-by-hour arrival view of one calendar day, keyed
// "HH:00". Hours with no projected arrivals are omitted.
type DayPerformance struct {
	Date  string                     `json:"date"`
	Hours map[string]HourPerformance `json:"hours"`
}

// AnalyzeDay runs the arrival analysis for every hour of day and keeps the
// hours that projected at least one arrival.
func (w *Walker) AnalyzeDay(visits []event.Visit, day time.Time) (DayPerformance, error) {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	out := DayPerformance{
		Date:  midnight.Format("2006-01-02"),
		Hours: make(map[string]HourPerformance),
	}

	for hour := 0; hour < 24; hour++ {
		start := midnight.Add(time.Duration(hour) * time.Hour)
		end := start.Add(time.Hour)

		an, err := w.Analyze(visits, start, end)
		if err != nil {
			return DayPerformance{}, err
		}

		totalExpected, delayed, notCompleted, actual, held := 0, 0, 0, 0, 0
		for _, sa := range an.DelayAnalysis {
			totalExpected += sa.TotalExpected
			delayed += sa.DelayedCount
			notCompleted += sa.NotCompletedCount
			actual += sa.ActualUnitsCount
			held += sa.HeldUnitsCount
		}
		if totalExpected == 0 && len(an.ExpectedArrivals) == 0 {
			continue
		}

		hp := HourPerformance{
			Hour:                  hour,
			TotalExpectedArrivals: totalExpected,
			DelayedUnits:          delayed,
			NotCompletedUnits:     notCompleted,
			ActualUnitsTotal:      actual,
			HeldUnitsTotal:        held,
			StationPerformance:    an.DelayAnalysis,
			HeldUnits:             an.HeldUnitsByStation,
		}
		if totalExpected > 0 {
			hp.OverallDelayRate = stats.Round1(float64(delayed) / float64(totalExpected) * 100)
			hp.CompletionRate = stats.Round1(float64(totalExpected-notCompleted) / float64(totalExpected) * 100)
		}
		out.Hours[fmt.Sprintf("%02d:00", hour)] = hp
	}
	return out, nil
}
