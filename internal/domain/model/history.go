package model

import (
	"time"

	"github.com/okian/pacer/internal/domain/types"
)

// History entry sources.
const (
	HistorySourceRecalculation  = "recalculation"
	HistorySourceSmoothed       = "smoothed_update"
	HistorySourceBacktest       = "backtest"
	HistorySourceCarriedForward = "carried_forward"
	HistorySourceInitial        = "initial"
)

// VdotHistoryEntry is one athlete-month of the fitness history.
type VdotHistoryEntry struct {
	ID           string     `json:"id"`
	AthleteID    string     `json:"athlete_id"`
	Date         time.Time  `json:"date"`
	FitnessIndex float64    `json:"fitness_index"`
	Source       string     `json:"source"`
	Confidence   types.Tier `json:"confidence"`
	Notes        string     `json:"notes,omitempty"`
}

// MonthKey identifies the (athlete, month) slot an entry occupies.
func (e VdotHistoryEntry) MonthKey() string {
	return e.AthleteID + "|" + MonthStart(e.Date).Format("2006-01")
}
