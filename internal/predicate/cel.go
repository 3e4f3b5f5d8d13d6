// Package predicate evaluates query membership and ordering for documents.
// Filters are compiled to CEL programs; the rest of the engine consumes the
// evaluator as a pure collaborator.
package predicate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/codetrek/syntrix-go/pkg/model"
)

// compileFiltersToCEL compiles a filter set into a single CEL program over a
// `doc` map variable. An empty filter set compiles to `true`.
func compileFiltersToCEL(filters model.Filters) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	exprs := make([]string, 0, len(filters))
	for _, f := range filters {
		expr, err := filterToExpression(f)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	src := "true"
	if len(exprs) > 0 {
		src = strings.Join(exprs, " && ")
	}

	ast, issues := env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile filter expression: %w", issues.Err())
	}
	return env.Program(ast)
}

// filterToExpression translates one filter into a CEL expression. Numeric
// comparisons are normalized through double() so that int and float64 inputs
// compare equal, since JSON decoding may deliver either.
func filterToExpression(f model.Filter) (string, error) {
	field := strconv.Quote(f.Field)
	accessor := fmt.Sprintf("doc[%s]", field)
	guard := fmt.Sprintf("(%s in doc)", field)

	switch f.Op {
	case model.OpEqual, model.OpGreater, model.OpGreaterOrEqual, model.OpLess, model.OpLessOrEqual:
		if isNumeric(f.Value) {
			lit, err := formatValue(f.Value)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s && double(%s) %s %s", guard, accessor, f.Op, lit), nil
		}
		lit, err := formatValue(f.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s && %s %s %s", guard, accessor, f.Op, lit), nil

	case model.OpIn:
		lit, err := formatValue(f.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s && %s in %s", guard, accessor, lit), nil

	case model.OpArrayContains:
		lit, err := formatValue(f.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s && %s in %s", guard, lit, accessor), nil
	}

	return "", fmt.Errorf("%w: unsupported filter operator %q", model.ErrInvalidQuery, f.Op)
}

// formatValue renders a filter value as a CEL literal. Maps and other
// composite values are not valid filter operands.
func formatValue(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, err := formatValue(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	default:
		if isNumeric(v) {
			return formatNumber(v), nil
		}
		return "", fmt.Errorf("%w: unsupported filter value %T", model.ErrInvalidQuery, v)
	}
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

// formatNumber renders any numeric value as a CEL double literal.
func formatNumber(v interface{}) string {
	s := strconv.FormatFloat(asFloat(v), 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case float64:
		return t
	}
	return 0
}
