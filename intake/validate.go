package intake

import (
	"fmt"

	"github.com/xraph/acpflow/job"
)

// ValidationResult is the outcome of validating a job spec. Warnings do
// not block acceptance.
type ValidationResult struct {
	Valid         bool     `json:"valid"`
	Errors        []string `json:"errors,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	EstimatedCost float64  `json:"estimated_cost"`
}

// paramValidator checks the parameters of one job type. It returns
// blocking errors and advisory warnings.
type paramValidator func(params map[string]any) (errs, warns []string)

var paramValidators = map[job.Type]paramValidator{
	job.TypeAnalyzeMarket:      validateAnalyzeMarket,
	job.TypeAnalyzeOutcomes:    validateAnalyzeOutcomes,
	job.TypeMarketReport:       validateMarketReport,
	job.TypeSentimentAnalysis:  validateSentimentAnalysis,
	job.TypeTraderAnalysis:     validateTraderAnalysis,
	job.TypePlaceOrder:         validatePlaceOrder,
	job.TypeCancelOrder:        validateCancelOrder,
	job.TypeManagePosition:     validateManagePosition,
	job.TypeOptimizePortfolio:  validateOptimizePortfolio,
	job.TypeRiskAssessment:     validateRiskAssessment,
	job.TypeRebalancePortfolio: validateRebalancePortfolio,
	job.TypeDetectArbitrage:    validateDetectArbitrage,
	job.TypeExecuteArbitrage:   validateExecuteArbitrage,
	job.TypeCustom:             validateCustomJob,
}

func requireParams(params map[string]any, names ...string) []string {
	var errs []string
	for _, name := range names {
		if _, ok := params[name]; !ok {
			errs = append(errs, fmt.Sprintf("missing required parameter: %s", name))
		}
	}
	return errs
}

// asNumber converts JSON-decoded numeric values.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asStringSlice(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}

func validateAnalyzeMarket(params map[string]any) (errs, warns []string) {
	errs = requireParams(params, "market_id")

	if v, ok := params["market_id"]; ok {
		if _, isStr := v.(string); !isStr {
			errs = append(errs, "market_id must be a string")
		}
	}
	if v, ok := params["depth"]; ok {
		if _, isNum := asNumber(v); !isNum {
			errs = append(errs, "depth must be a number")
		}
	}
	return errs, warns
}

func validateAnalyzeOutcomes(params map[string]any) (errs, warns []string) {
	return requireParams(params, "market_id"), nil
}

func validateMarketReport(params map[string]any) (errs, warns []string) {
	errs = requireParams(params, "market_ids")

	if v, ok := params["market_ids"]; ok {
		ids, isList := asStringSlice(v)
		switch {
		case !isList:
			errs = append(errs, "market_ids must be a list of strings")
		case len(ids) > 10:
			warns = append(warns, "large number of markets requested, processing may take longer")
		}
	}
	return errs, warns
}

func validateSentimentAnalysis(params map[string]any) (errs, warns []string) {
	return requireParams(params, "market_id"), nil
}

func validateTraderAnalysis(params map[string]any) (errs, warns []string) {
	errs = requireParams(params, "trader_addresses")

	if v, ok := params["trader_addresses"]; ok {
		if _, isList := asStringSlice(v); !isList {
			errs = append(errs, "trader_addresses must be a list of strings")
		}
	}
	return errs, warns
}

func validatePlaceOrder(params map[string]any) (errs, warns []string) {
	errs = requireParams(params, "market_id", "outcome_id", "side", "price", "size")

	if v, ok := params["side"]; ok {
		if v != "buy" && v != "sell" {
			errs = append(errs, "side must be 'buy' or 'sell'")
		}
	}
	if v, ok := params["price"]; ok {
		price, isNum := asNumber(v)
		if !isNum {
			errs = append(errs, "price must be a valid number")
		} else if price <= 0 || price >= 1 {
			errs = append(errs, "price must be between 0 and 1")
		}
	}
	if v, ok := params["size"]; ok {
		size, isNum := asNumber(v)
		if !isNum {
			errs = append(errs, "size must be a valid number")
		} else if size <= 0 {
			errs = append(errs, "size must be greater than 0")
		}
	}
	return errs, warns
}

func validateCancelOrder(params map[string]any) (errs, warns []string) {
	return requireParams(params, "order_id"), nil
}

func validateManagePosition(params map[string]any) (errs, warns []string) {
	errs = requireParams(params, "market_id", "action")

	if v, ok := params["action"]; ok {
		switch v {
		case "close", "reduce", "increase", "hedge":
		default:
			errs = append(errs, "action must be one of [close reduce increase hedge]")
		}
	}
	return errs, warns
}

func validateOptimizePortfolio(params map[string]any) (errs, warns []string) {
	if v, ok := params["risk_tolerance"]; ok {
		rt, isNum := asNumber(v)
		if !isNum {
			errs = append(errs, "risk_tolerance must be a valid number")
		} else if rt < 0 || rt > 1 {
			errs = append(errs, "risk_tolerance must be between 0 and 1")
		}
	}
	return errs, warns
}

func validateRiskAssessment(params map[string]any) (errs, warns []string) {
	errs = requireParams(params, "positions")

	if v, ok := params["positions"]; ok {
		switch v.(type) {
		case []any, []map[string]any:
		default:
			errs = append(errs, "positions must be a list")
		}
	}
	return errs, warns
}

func validateRebalancePortfolio(params map[string]any) (errs, warns []string) {
	return requireParams(params, "portfolio", "target_allocation"), nil
}

func validateDetectArbitrage(params map[string]any) (errs, warns []string) {
	if v, ok := params["min_profit_threshold"]; ok {
		threshold, isNum := asNumber(v)
		if !isNum {
			errs = append(errs, "min_profit_threshold must be a valid number")
		} else if threshold <= 0 {
			errs = append(errs, "min_profit_threshold must be greater than 0")
		}
	}
	return errs, warns
}

func validateExecuteArbitrage(params map[string]any) (errs, warns []string) {
	errs = requireParams(params, "arbitrage_id", "max_slippage")

	if v, ok := params["max_slippage"]; ok {
		slippage, isNum := asNumber(v)
		if !isNum {
			errs = append(errs, "max_slippage must be a valid number")
		} else if slippage < 0 || slippage > 0.1 {
			errs = append(errs, "max_slippage must be between 0 and 0.1 (10%)")
		}
	}

	warns = append(warns, "executing arbitrage is a high-risk operation with potential for slippage")
	return errs, warns
}

func validateCustomJob(params map[string]any) (errs, warns []string) {
	errs = requireParams(params, "job_description")
	warns = append(warns, "custom job requires manual review and may have longer processing time")
	return errs, warns
}
