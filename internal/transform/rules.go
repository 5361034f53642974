package transform

import (
	"fmt"
	"math"
	"regexp"

	"adaptiveclean/internal/dataset"
	"adaptiveclean/internal/stats"
)

// Rule kinds.
const (
	RuleRange = "range"
	RuleRegex = "regex"
)

// Rule is a per-column validation rule.
type Rule struct {
	Type    string   `json:"type" yaml:"type" validate:"required,oneof=range regex"`
	Min     *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// ValidateRules applies range rules (clamp numeric cells) and regex rules
// (remove matches from the text form of non-null cells). Rules naming a
// missing column are skipped. An invalid pattern is a type error.
func ValidateRules(rules map[string]Rule) Func {
	return func(in *dataset.Dataset) (*dataset.Dataset, Details, error) {
		schema := in.Schema()
		replace := map[int][]dataset.Value{}
		applied := 0

		for name, rule := range rules {
			j := schema.Index(name)
			if j < 0 {
				continue
			}
			col := in.Column(j)
			switch rule.Type {
			case RuleRange:
				lo, hi := rangeBounds(rule)
				for i, v := range col {
					if f, ok := v.Float(); ok {
						col[i] = dataset.Number(stats.Clamp(f, lo, hi))
					}
				}
			case RuleRegex:
				re, err := regexp.Compile(rule.Pattern)
				if err != nil {
					return nil, nil, fmt.Errorf("rule for column %q: %w", name, err)
				}
				for i, v := range col {
					if !v.IsNull() {
						col[i] = dataset.Text(re.ReplaceAllString(v.String(), ""))
					}
				}
			default:
				continue
			}
			replace[j] = col
			applied++
		}

		return in.WithColumns(replace), Details{"rules_applied": applied}, nil
	}
}

func rangeBounds(r Rule) (float64, float64) {
	lo, hi := -math.MaxFloat64, math.MaxFloat64
	if r.Min != nil {
		lo = *r.Min
	}
	if r.Max != nil {
		hi = *r.Max
	}
	return lo, hi
}

// CrossTableConsistency keeps only rows whose value in each referenced column
// appears in that column's allowed list. Values compare by text form; a
// null never matches.
func CrossTableConsistency(reference map[string][]any) Func {
	return func(in *dataset.Dataset) (*dataset.Dataset, Details, error) {
		schema := in.Schema()
		type check struct {
			col     int
			allowed map[string]bool
		}
		var checks []check
		for name, values := range reference {
			j := schema.Index(name)
			if j < 0 {
				continue
			}
			allowed := make(map[string]bool, len(values))
			for _, v := range values {
				allowed[dataset.FromAny(v).String()] = true
			}
			checks = append(checks, check{col: j, allowed: allowed})
		}

		out := in.Filter(func(_ int, r dataset.Row) bool {
			for _, c := range checks {
				v := r[c.col]
				if v.IsNull() || !c.allowed[v.String()] {
					return false
				}
			}
			return true
		})
		return out, Details{
			"reference_checks": len(checks),
			"rows_removed":     in.Len() - out.Len(),
		}, nil
	}
}
