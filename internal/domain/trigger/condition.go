package trigger

import (
	"strings"

	"github.com/okian/funnel/internal/domain/model"
)

// Matches reports whether every term of a condition holds against the event
// parameters. An empty condition always matches.
func Matches(cond []model.ConditionTerm, params model.Params) bool {
	for _, term := range cond {
		if !evalTerm(term, params) {
			return false
		}
	}
	return true
}

// evalTerm evaluates one comparison. A missing parameter falsifies the term;
// so does a type mismatch between the parameter value and the rule value.
func evalTerm(term model.ConditionTerm, params model.Params) bool {
	actual, ok := params[term.Parameter]
	if !ok {
		return false
	}

	switch term.Op {
	case model.OpEq:
		return compare(actual, term.Value, func(c int) bool { return c == 0 })
	case model.OpNe:
		return compare(actual, term.Value, func(c int) bool { return c != 0 })
	case model.OpGt:
		return compare(actual, term.Value, func(c int) bool { return c > 0 })
	case model.OpGte:
		return compare(actual, term.Value, func(c int) bool { return c >= 0 })
	case model.OpLt:
		return compare(actual, term.Value, func(c int) bool { return c < 0 })
	case model.OpLte:
		return compare(actual, term.Value, func(c int) bool { return c <= 0 })
	case model.OpContains:
		return containsValue(actual, term.Value)
	default:
		return false
	}
}

// compare orders actual against expected and feeds the sign to check.
// Numbers compare as float64, strings lexically, bools as equality only.
func compare(actual, expected interface{}, check func(int) bool) bool {
	if af, aok := toFloat(actual); aok {
		ef, eok := toFloat(expected)
		if !eok {
			return false
		}
		switch {
		case af < ef:
			return check(-1)
		case af > ef:
			return check(1)
		default:
			return check(0)
		}
	}

	if as, ok := actual.(string); ok {
		es, ok := expected.(string)
		if !ok {
			return false
		}
		return check(strings.Compare(as, es))
	}

	if ab, ok := actual.(bool); ok {
		eb, ok := expected.(bool)
		if !ok {
			return false
		}
		if ab == eb {
			return check(0)
		}
		return check(1)
	}

	return false
}

// containsValue handles the contains operator for strings and arrays.
func containsValue(actual, expected interface{}) bool {
	switch a := actual.(type) {
	case string:
		s, ok := expected.(string)
		return ok && strings.Contains(a, s)
	case []interface{}:
		for _, item := range a {
			if compare(item, expected, func(c int) bool { return c == 0 }) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// toFloat normalizes JSON-decoded and statically typed numbers to float64.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
