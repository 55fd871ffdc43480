package workflow

import (
	"context"
	"fmt"
	"slices"

	"salesflow/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ReasonTransitionNotPermitted = "transition not permitted by configuration"
	ReasonConfigUnavailable      = "workflow configuration unavailable"
)

// FetchErrorPolicy decides what happens when the configuration cannot be read
type FetchErrorPolicy string

const (
	FailOpen   FetchErrorPolicy = "fail_open"
	FailClosed FetchErrorPolicy = "fail_closed"
)

// ParseFetchErrorPolicy accepts "fail_open" and "fail_closed"; empty means fail_open
func ParseFetchErrorPolicy(s string) (FetchErrorPolicy, error) {
	switch FetchErrorPolicy(s) {
	case "", FailOpen:
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	}
	return "", fmt.Errorf("invalid workflow fetch error policy %q (expected fail_open or fail_closed)", s)
}

// ConfigStore reads a company's workflow configuration. A missing configuration is (nil, nil).
type ConfigStore interface {
	FindByCompanyID(ctx context.Context, companyID uuid.UUID) (*model.WorkflowConfig, error)
}

// Result is the outcome of a transition check
type Result struct {
	Allowed bool                  `json:"allowed"`
	Reasons []string              `json:"reasons"`
	Rule    *model.TransitionRule `json:"rule"`
}

func allowed() Result {
	return Result{Allowed: true, Reasons: []string{}}
}

// Validator checks sale status transitions against the company's workflow configuration.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	store  ConfigStore
	policy FetchErrorPolicy
	logger *zap.Logger
}

type Option func(*Validator)

func WithFetchErrorPolicy(p FetchErrorPolicy) Option {
	return func(v *Validator) { v.policy = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

func NewValidator(store ConfigStore, opts ...Option) *Validator {
	v := &Validator{store: store, policy: FailOpen, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate reports whether a sale may move to target when acted on by role.
// It performs exactly one configuration read and never writes.
func (v *Validator) Validate(ctx context.Context, companyID uuid.UUID, sale SaleData, target model.SaleStatus, role string) Result {
	def, enforced, res := v.load(ctx, companyID)
	if !enforced {
		return res
	}
	return Evaluate(def, sale, target, role)
}

// Options lists the transitions configured from the sale's current status, each with its
// evaluated result and condition checklist. enforced is false when the company has no
// active configuration (every transition is then allowed).
func (v *Validator) Options(ctx context.Context, companyID uuid.UUID, sale SaleData, role string) (options []TransitionOption, enforced bool) {
	def, enforced, _ := v.load(ctx, companyID)
	if !enforced {
		return nil, false
	}
	for _, rule := range RulesFrom(def, sale.Status) {
		options = append(options, TransitionOption{
			To:        rule.To,
			Result:    Evaluate(def, sale, rule.To, role),
			Checklist: Checklist(rule, sale),
		})
	}
	return options, true
}

// load fetches the configuration. When enforced is false, res is the answer to return as is.
func (v *Validator) load(ctx context.Context, companyID uuid.UUID) (def model.WorkflowDefinition, enforced bool, res Result) {
	cfg, err := v.store.FindByCompanyID(ctx, companyID)
	if err != nil {
		v.logger.Warn("workflow config fetch failed",
			zap.String("company_id", companyID.String()),
			zap.String("policy", string(v.policy)),
			zap.Error(err))
		if v.policy == FailClosed {
			return def, false, Result{Allowed: false, Reasons: []string{ReasonConfigUnavailable}}
		}
		return def, false, allowed()
	}
	if cfg == nil || !cfg.IsActive {
		return def, false, allowed()
	}

	def, err = cfg.Definition()
	if err != nil {
		v.logger.Error("workflow config is not valid JSON",
			zap.String("company_id", companyID.String()),
			zap.Error(err))
		return def, false, allowed()
	}
	if def.Transitions == nil {
		return def, false, allowed()
	}
	return def, true, Result{}
}

// Evaluate applies an enforced definition to a sale snapshot
func Evaluate(def model.WorkflowDefinition, sale SaleData, target model.SaleStatus, role string) Result {
	rule, ok := FindRule(def, sale.Status, target)
	if !ok {
		return Result{Allowed: false, Reasons: []string{ReasonTransitionNotPermitted}}
	}

	reasons := []string{}
	if len(rule.AllowedRoles) > 0 && !slices.Contains(rule.AllowedRoles, role) {
		reasons = append(reasons, fmt.Sprintf("role %q is not allowed to perform this transition", role))
	}
	for _, cond := range rule.Conditions {
		// custom conditions are confirmed by the user through the checklist
		if cond.Type != model.ConditionTypeBuiltIn {
			continue
		}
		if !EvaluateCondition(cond.BuiltInKey, sale) {
			reasons = append(reasons, cond.Label)
		}
	}

	return Result{Allowed: len(reasons) == 0, Reasons: reasons, Rule: rule}
}
