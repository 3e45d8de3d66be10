package style

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/riskmap/pkg/resolver"
)

// RuleSpec declares a highlight rule: when the CEL expression When holds for
// a resolved view, the stroke (and optionally fill opacity) is overridden.
//
// Expressions see score (double), risk, code, jurisdiction, subcategory
// (string), eo, det, lic, reg (int) and has_data (bool).
type RuleSpec struct {
	Name         string
	When         string
	StrokeColor  string
	StrokeWeight float64
	FillOpacity  *float64
}

type rule struct {
	spec    RuleSpec
	stroke  string
	program cel.Program
}

// Rules is a compiled, ordered rule list. Later matches override earlier
// ones. Rules is safe for concurrent use.
type Rules struct {
	rules  []rule
	logger *slog.Logger
}

func ruleEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.CrossTypeNumericComparisons(true),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("risk", cel.StringType),
		cel.Variable("code", cel.StringType),
		cel.Variable("jurisdiction", cel.StringType),
		cel.Variable("subcategory", cel.StringType),
		cel.Variable("eo", cel.IntType),
		cel.Variable("det", cel.IntType),
		cel.Variable("lic", cel.IntType),
		cel.Variable("reg", cel.IntType),
		cel.Variable("has_data", cel.BoolType),
		cel.Variable("has_score", cel.BoolType),
	)
}

// CompileRules type-checks every rule. Expressions must yield a bool.
func CompileRules(specs []RuleSpec) (*Rules, error) {
	rs := &Rules{logger: slog.Default().With("component", "style")}
	if len(specs) == 0 {
		return rs, nil
	}
	env, err := ruleEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	for i, spec := range specs {
		name := spec.Name
		if name == "" {
			name = fmt.Sprintf("rule[%d]", i)
			spec.Name = name
		}
		ast, issues := env.Compile(spec.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %s: CEL compile error: %w", name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %s: expression must be boolean, got %s", name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %s: CEL program error: %w", name, err)
		}
		r := rule{spec: spec, program: prg}
		if spec.StrokeColor != "" {
			c, err := ParseColor(spec.StrokeColor)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", name, err)
			}
			r.stroke = c.String()
		}
		if spec.FillOpacity != nil && (*spec.FillOpacity < 0 || *spec.FillOpacity > 1) {
			return nil, fmt.Errorf("rule %s: fill opacity %v outside [0,1]", name, *spec.FillOpacity)
		}
		rs.rules = append(rs.rules, r)
	}
	return rs, nil
}

// Len returns the number of rules.
func (rs *Rules) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Apply returns s with the overrides of every matching rule applied. An
// evaluation error counts as no match.
func (rs *Rules) Apply(v resolver.View, s Style) Style {
	if rs.Len() == 0 {
		return s
	}
	activation := map[string]any{
		"score":        v.Score,
		"risk":         v.Risk,
		"code":         v.Code,
		"jurisdiction": string(v.Jurisdiction),
		"subcategory":  v.Subcategory,
		"eo":           int64(v.EO),
		"det":          int64(v.Det),
		"lic":          int64(v.Lic),
		"reg":          int64(v.Reg),
		"has_data":     v.HasData,
		"has_score":    v.HasScore,
	}
	for _, r := range rs.rules {
		out, _, err := r.program.Eval(activation)
		if err != nil {
			rs.logger.Debug("rule evaluation failed", "rule", r.spec.Name, "code", v.Code, "error", err)
			continue
		}
		if matched, ok := out.Value().(bool); !ok || !matched {
			continue
		}
		if r.stroke != "" {
			s.StrokeColor = r.stroke
		}
		if r.spec.StrokeWeight > 0 {
			s.StrokeWeight = r.spec.StrokeWeight
		}
		if r.spec.FillOpacity != nil {
			s.FillOpacity = *r.spec.FillOpacity
		}
	}
	return s
}
