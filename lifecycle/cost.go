package lifecycle

import (
	"math"

	"github.com/xraph/acpflow/job"
)

// Base cost per category, in units of the payment token.
var baseCosts = map[job.Category]float64{
	job.CategoryMarketAnalysis:      10.0,
	job.CategoryTradeExecution:      15.0,
	job.CategoryPortfolioManagement: 20.0,
	job.CategoryArbitrageDetection:  25.0,
	job.CategoryCustom:              30.0,
}

var priorityMultipliers = map[job.Priority]float64{
	job.PriorityLow:    0.8,
	job.PriorityMedium: 1.0,
	job.PriorityHigh:   1.5,
	job.PriorityUrgent: 2.0,
}

var complexityMultipliers = map[string]float64{
	"high":      1.5,
	"very_high": 2.0,
}

var dataVolumeMultipliers = map[string]float64{
	"large":      1.3,
	"very_large": 1.6,
}

// CalculateCost prices a job spec deterministically:
//
//	base(category) × priority × complexity × data_volume
//
// rounded to two decimal places. Unknown categories price as custom
// work; unknown priorities and parameter values multiply by 1.0.
func CalculateCost(spec job.Spec) float64 {
	base, ok := baseCosts[spec.Category]
	if !ok {
		base = baseCosts[job.CategoryCustom]
	}

	cost := base

	if m, ok := priorityMultipliers[spec.Priority]; ok {
		cost *= m
	}

	if v, ok := spec.Parameters["complexity"].(string); ok {
		if m, ok := complexityMultipliers[v]; ok {
			cost *= m
		}
	}
	if v, ok := spec.Parameters["data_volume"].(string); ok {
		if m, ok := dataVolumeMultipliers[v]; ok {
			cost *= m
		}
	}

	return math.Round(cost*100) / 100
}
