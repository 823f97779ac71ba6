package model

import "time"

// Tier is the letter grade assigned to an overall score.
type Tier string

const (
	TierAPlus Tier = "A+"
	TierA     Tier = "A"
	TierB     Tier = "B"
	TierC     Tier = "C"
	TierD     Tier = "D"
)

// Tiers lists every tier from best to worst.
var Tiers = []Tier{TierAPlus, TierA, TierB, TierC, TierD}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	for _, v := range Tiers {
		if t == v {
			return true
		}
	}
	return false
}

// ScoreBreakdown holds each category's weighted contribution on a 0-100
// scale. The components are rounded independently and are not adjusted for
// feature confidence, so they do not have to add up to the overall score.
type ScoreBreakdown struct {
	Demand  int `json:"demand"`
	Price   int `json:"price"`
	Content int `json:"content"`
	Market  int `json:"market"`
}

// ScoreRecord is the persisted latest score for one product.
type ScoreRecord struct {
	ProductID         string         `json:"product_id"`
	OverallScore      int            `json:"overall_score"`
	Breakdown         ScoreBreakdown `json:"score_breakdown"`
	Tier              Tier           `json:"score_tier"`
	Recommendations   []string       `json:"recommendations"`
	RiskFactors       []string       `json:"risk_factors"`
	Opportunities     []string       `json:"opportunities"`
	FeatureConfidence float64        `json:"feature_confidence"`
	ScoredAt          time.Time      `json:"scored_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Age returns how long ago the record was scored relative to now.
func (r *ScoreRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.ScoredAt)
}

// AnalysisLogEntry is one append-only audit row per scoring attempt.
// Failed attempts carry ErrorMessage and no NewScore.
type AnalysisLogEntry struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	PreviousScore    *int      `json:"previous_score,omitempty"`
	NewScore         *int      `json:"new_score,omitempty"`
	ScoreChange      *int      `json:"score_change,omitempty"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	TriggeredBy      string    `json:"triggered_by"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ScoreStats summarizes all persisted scores.
type ScoreStats struct {
	Count        int          `json:"count"`
	AverageScore float64      `json:"average_score"`
	TierCounts   map[Tier]int `json:"tier_counts"`
	LastScoredAt *time.Time   `json:"last_scored_at,omitempty"`
}
