package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kavia-common/deviceform/internal/routing"
	"github.com/kavia-common/deviceform/pkg/authz"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fatalf("usage: cfgtool <rules-check|authz-probe|routing-check|tenants-check> [args]")
	}

	switch os.Args[1] {
	case "rules-check":
		rulesCheck(os.Args[2:])
	case "authz-probe":
		authzProbe(os.Args[2:])
	case "routing-check":
		routingCheck(os.Args[2:])
	case "tenants-check":
		tenantsCheck(os.Args[2:])
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

type statusRuleSpec struct {
	RuleID          string `yaml:"rule_id"`
	Priority        int    `yaml:"priority"`
	EffectiveDate   string `yaml:"effective_date"`
	EndDate         string `yaml:"end_date"`
	EligibilityExpr string `yaml:"eligibility_expr"`
	DecisionExpr    string `yaml:"decision_expr"`
	ReasonCode      string `yaml:"reason_code"`
}

type statusRulesDoc struct {
	Version int              `yaml:"version"`
	Rules   []statusRuleSpec `yaml:"rules"`
}

func rulesCheck(args []string) {
	fs := flag.NewFlagSet("rules-check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var path, transition, asOf string
	fs.StringVar(&path, "path", "config/deviceform/status_rules.yaml", "status rules yaml")
	fs.StringVar(&transition, "transition", "", "probe transition PREV:NEXT (PREV may be empty)")
	fs.StringVar(&asOf, "as-of", "", "probe date YYYY-MM-DD (default today)")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		fatal(err)
	}
	var doc statusRulesDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		fatal(err)
	}
	if doc.Version != 1 {
		fatalf("unsupported version: %d", doc.Version)
	}
	if len(doc.Rules) == 0 {
		fatalf("no rules in %s", path)
	}

	env, err := cel.NewEnv(cel.Variable("ctx", cel.MapType(cel.StringType, cel.StringType)))
	if err != nil {
		fatal(err)
	}

	type compiledRule struct {
		spec        statusRuleSpec
		eligibility cel.Program
		decision    cel.Program
	}
	compiled := make([]compiledRule, 0, len(doc.Rules))
	for _, rule := range doc.Rules {
		if strings.TrimSpace(rule.RuleID) == "" {
			fatalf("rule without rule_id")
		}
		if strings.TrimSpace(rule.EffectiveDate) == "" {
			fatalf("rule %s: missing effective_date", rule.RuleID)
		}
		eligibility, err := compileRuleExpr(env, rule.EligibilityExpr, cel.BoolType)
		if err != nil {
			fatalf("rule %s: eligibility_expr: %v", rule.RuleID, err)
		}
		decision, err := compileRuleExpr(env, rule.DecisionExpr, cel.StringType)
		if err != nil {
			fatalf("rule %s: decision_expr: %v", rule.RuleID, err)
		}
		compiled = append(compiled, compiledRule{spec: rule, eligibility: eligibility, decision: decision})
	}

	fmt.Printf("[rules-check] OK (%d rules)\n", len(compiled))
	if transition == "" {
		return
	}

	prev, next, ok := strings.Cut(transition, ":")
	if !ok || strings.TrimSpace(next) == "" {
		fatalf("invalid --transition, want PREV:NEXT")
	}
	if asOf == "" {
		asOf = time.Now().UTC().Format("2006-01-02")
	}
	ctxMap := map[string]string{
		"tenant_id":       "",
		"actor_id":        "",
		"actor_role":      "",
		"device_id":       "",
		"enabled":         "true",
		"previous_status": strings.ToUpper(strings.TrimSpace(prev)),
		"status":          strings.ToUpper(strings.TrimSpace(next)),
		"as_of":           asOf,
	}

	eligible := compiled[:0]
	for _, rule := range compiled {
		if rule.spec.EffectiveDate > asOf {
			continue
		}
		if rule.spec.EndDate != "" && rule.spec.EndDate <= asOf {
			continue
		}
		out, _, err := rule.eligibility.Eval(map[string]any{"ctx": ctxMap})
		if err != nil {
			fatalf("rule %s: eligibility eval: %v", rule.spec.RuleID, err)
		}
		if out.Value().(bool) {
			eligible = append(eligible, rule)
		}
	}
	if len(eligible) == 0 {
		fmt.Printf("[rules-check] %s -> %s on %s: deny (no eligible rule)\n", ctxMap["previous_status"], ctxMap["status"], asOf)
		return
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].spec.Priority != eligible[j].spec.Priority {
			return eligible[i].spec.Priority > eligible[j].spec.Priority
		}
		return eligible[i].spec.EffectiveDate > eligible[j].spec.EffectiveDate
	})
	winner := eligible[0]
	out, _, err := winner.decision.Eval(map[string]any{"ctx": ctxMap})
	if err != nil {
		fatalf("rule %s: decision eval: %v", winner.spec.RuleID, err)
	}
	decision := strings.ToLower(strings.TrimSpace(out.Value().(string)))
	fmt.Printf("[rules-check] %s -> %s on %s: %s (rule=%s reason=%s)\n",
		ctxMap["previous_status"], ctxMap["status"], asOf, decision, winner.spec.RuleID, winner.spec.ReasonCode)
}

func compileRuleExpr(env *cel.Env, expr string, outputType *cel.Type) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("expression required")
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != outputType {
		return nil, errors.New("expression output type mismatch")
	}
	return env.Program(ast)
}

func authzProbe(args []string) {
	fs := flag.NewFlagSet("authz-probe", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var modelPath, policyPath, role, tenantID, object, action, mode string
	fs.StringVar(&modelPath, "model", "config/access/model.conf", "casbin model path")
	fs.StringVar(&policyPath, "policy", "config/access/policy.csv", "casbin policy path")
	fs.StringVar(&role, "role", "", "actor role slug")
	fs.StringVar(&tenantID, "tenant", "", "tenant id")
	fs.StringVar(&object, "object", authz.ObjectDeviceForm, "authz object")
	fs.StringVar(&action, "action", authz.ActionEdit, "authz action")
	fs.StringVar(&mode, "mode", string(authz.ModeEnforce), "enforce|shadow|disabled")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if role == "" {
		fatalf("missing --role")
	}
	if tenantID == "" {
		fatalf("missing --tenant")
	}

	authzMode, err := authz.ParseMode(mode)
	if err != nil {
		fatalf("invalid --mode %q: %v", mode, err)
	}

	a, err := authz.NewAuthorizer(modelPath, policyPath, authzMode)
	if err != nil {
		fatal(err)
	}
	allowed, enforced, err := a.Authorize(
		authz.SubjectFromRoleSlug(role),
		authz.DomainFromTenantID(tenantID),
		object,
		action,
	)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("[authz-probe] role=%s tenant=%s object=%s action=%s allowed=%v enforced=%v\n",
		role, tenantID, object, action, allowed, enforced)
}

func routingCheck(args []string) {
	fs := flag.NewFlagSet("routing-check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var path, entrypoint string
	fs.StringVar(&path, "allowlist", "config/routing/allowlist.yaml", "allowlist yaml")
	fs.StringVar(&entrypoint, "entrypoint", "server", "entrypoint name")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	a, err := routing.LoadAllowlist(path)
	if err != nil {
		fatal(err)
	}
	if _, err := routing.NewClassifier(a, entrypoint); err != nil {
		fatal(err)
	}

	fmt.Printf("[routing-check] OK (%d routes in %s)\n", len(a.Entrypoints[entrypoint].Routes), entrypoint)
}

type tenantSpec struct {
	ID     string `yaml:"id"`
	Domain string `yaml:"domain"`
	Name   string `yaml:"name"`
}

type tenantsDoc struct {
	Version int          `yaml:"version"`
	Tenants []tenantSpec `yaml:"tenants"`
}

func tenantsCheck(args []string) {
	fs := flag.NewFlagSet("tenants-check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var path string
	fs.StringVar(&path, "path", "config/tenants.yaml", "tenants yaml")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		fatal(err)
	}
	var doc tenantsDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		fatal(err)
	}
	if doc.Version != 1 {
		fatalf("unsupported version: %d", doc.Version)
	}
	if len(doc.Tenants) == 0 {
		fatalf("no tenants in %s", path)
	}
	seen := make(map[string]string, len(doc.Tenants))
	for _, tenant := range doc.Tenants {
		if strings.TrimSpace(tenant.ID) == "" || strings.TrimSpace(tenant.Domain) == "" {
			fatalf("tenant with empty id or domain")
		}
		domain := strings.ToLower(strings.TrimSpace(tenant.Domain))
		if prev, ok := seen[domain]; ok {
			fatalf("domain %s mapped to both %s and %s", domain, prev, tenant.ID)
		}
		seen[domain] = tenant.ID
	}
	fmt.Printf("[tenants-check] OK (%d tenants)\n", len(doc.Tenants))
}

func fatal(err error) {
	if err == nil {
		os.Exit(1)
	}
	fatalf("%v", err)
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
