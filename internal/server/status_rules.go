package server

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/kavia-common/deviceform/modules/deviceform/domain/types"
)

const (
	statusRuleDecisionAllow = "allow"
	statusRuleDecisionDeny  = "deny"
)

const statusRuleUnmatchedReasonCode = "STATUS_TRANSITION_UNMATCHED"

// statusRule is one host-configured transition rule. Expressions are CEL
// over a string map named ctx; eligibility must yield bool, decision must
// yield "allow" or "deny".
type statusRule struct {
	RuleID          string `yaml:"rule_id" json:"rule_id"`
	Priority        int    `yaml:"priority" json:"priority"`
	EffectiveDate   string `yaml:"effective_date" json:"effective_date"`
	EndDate         string `yaml:"end_date" json:"end_date,omitempty"`
	EligibilityExpr string `yaml:"eligibility_expr" json:"eligibility_expr"`
	DecisionExpr    string `yaml:"decision_expr" json:"decision_expr"`
	ReasonCode      string `yaml:"reason_code" json:"reason_code"`
}

type statusRulesFile struct {
	Version int          `yaml:"version"`
	Rules   []statusRule `yaml:"rules"`
}

func loadStatusRules() ([]statusRule, error) {
	path := os.Getenv("STATUS_RULES_PATH")
	if path == "" {
		p, err := defaultStatusRulesPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rf statusRulesFile
	if err := yaml.Unmarshal(b, &rf); err != nil {
		return nil, err
	}
	if rf.Version != 1 {
		return nil, errors.New("status rules: unsupported version")
	}
	if len(rf.Rules) == 0 {
		return nil, errors.New("status rules: empty")
	}
	for _, rule := range rf.Rules {
		if strings.TrimSpace(rule.RuleID) == "" {
			return nil, errors.New("status rules: rule without rule_id")
		}
		if strings.TrimSpace(rule.EligibilityExpr) == "" || strings.TrimSpace(rule.DecisionExpr) == "" {
			return nil, errors.New("status rules: rule " + rule.RuleID + " missing expression")
		}
		if strings.TrimSpace(rule.EffectiveDate) == "" {
			return nil, errors.New("status rules: rule " + rule.RuleID + " missing effective_date")
		}
	}
	return rf.Rules, nil
}

func defaultStatusRulesPath() (string, error) {
	path := "config/deviceform/status_rules.yaml"
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: status rules not found")
}

var newStatusRulesCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("ctx", cel.MapType(cel.StringType, cel.StringType)))
}

var newStatusRulesCELProgram = func(env *cel.Env, ast *cel.Ast) (cel.Program, error) {
	return env.Program(ast)
}

var statusRuleEligibilityProgramCache sync.Map
var statusRuleDecisionProgramCache sync.Map

func statusChangeCELContext(tenantID string, actor Actor, state types.DeviceState, newStatus string, asOf string) map[string]string {
	return map[string]string{
		"tenant_id":       tenantID,
		"actor_id":        actor.ID,
		"actor_role":      actor.RoleSlug,
		"device_id":       state.DeviceID,
		"enabled":         strconv.FormatBool(state.Enabled),
		"previous_status": strings.ToUpper(strings.TrimSpace(state.Status)),
		"status":          strings.ToUpper(strings.TrimSpace(newStatus)),
		"as_of":           asOf,
	}
}

// evaluateStatusRules picks the highest-priority eligible rule effective on
// asOf and returns its decision. No eligible rule means deny.
func evaluateStatusRules(asOf string, ctxMap map[string]string, rules []statusRule) (decision string, reasonCode string, matched int, err error) {
	var selected *statusRule
	for i := range rules {
		rule := rules[i]
		if !statusRuleEffectiveAsOf(rule, asOf) {
			continue
		}
		eligible, evalErr := evalStatusRuleEligibility(rule.EligibilityExpr, ctxMap)
		if evalErr != nil {
			return "", "", matched, evalErr
		}
		if !eligible {
			continue
		}
		matched++
		if selected == nil || rule.Priority > selected.Priority ||
			(rule.Priority == selected.Priority && rule.EffectiveDate > selected.EffectiveDate) {
			copyRule := rule
			selected = &copyRule
		}
	}
	if selected == nil {
		return statusRuleDecisionDeny, statusRuleUnmatchedReasonCode, matched, nil
	}

	decision, err = evalStatusRuleDecision(selected.DecisionExpr, ctxMap)
	if err != nil {
		return "", "", matched, err
	}
	switch decision {
	case statusRuleDecisionAllow, statusRuleDecisionDeny:
	default:
		decision = statusRuleDecisionDeny
	}
	reasonCode = strings.TrimSpace(selected.ReasonCode)
	if reasonCode == "" {
		reasonCode = statusRuleUnmatchedReasonCode
	}
	return decision, reasonCode, matched, nil
}

func statusRuleEffectiveAsOf(rule statusRule, asOf string) bool {
	if rule.EffectiveDate > asOf {
		return false
	}
	if rule.EndDate != "" && rule.EndDate <= asOf {
		return false
	}
	return true
}

func evalStatusRuleEligibility(expr string, ctxMap map[string]string) (bool, error) {
	program, err := loadOrCompileStatusRuleProgram(expr, cel.BoolType, &statusRuleEligibilityProgramCache)
	if err != nil {
		return false, err
	}
	out, _, err := program.Eval(map[string]any{"ctx": ctxMap})
	if err != nil {
		return false, err
	}
	v := out.Value().(bool)
	return v, nil
}

func evalStatusRuleDecision(expr string, ctxMap map[string]string) (string, error) {
	program, err := loadOrCompileStatusRuleProgram(expr, cel.StringType, &statusRuleDecisionProgramCache)
	if err != nil {
		return "", err
	}
	out, _, err := program.Eval(map[string]any{"ctx": ctxMap})
	if err != nil {
		return "", err
	}
	v := out.Value().(string)
	return strings.ToLower(strings.TrimSpace(v)), nil
}

func loadOrCompileStatusRuleProgram(expr string, outputType *cel.Type, cache *sync.Map) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("expression required")
	}
	if cached, ok := cache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	env, err := newStatusRulesCELEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != outputType {
		return nil, errors.New("expression output type mismatch")
	}
	program, err := newStatusRulesCELProgram(env, ast)
	if err != nil {
		return nil, err
	}
	cache.Store(expr, program)
	return program, nil
}
