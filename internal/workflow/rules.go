package workflow

import (
	"errors"
	"fmt"
	"strings"

	"salesflow/internal/model"
)

var (
	ErrDuplicateTransition = errors.New("duplicate transition")
	ErrInvalidTransition   = errors.New("invalid transition rule")
)

// FindRule returns the first rule moving a sale from -> to
func FindRule(def model.WorkflowDefinition, from, to model.SaleStatus) (*model.TransitionRule, bool) {
	for i := range def.Transitions {
		rule := &def.Transitions[i]
		if rule.From == from && rule.To == to {
			return rule, true
		}
	}
	return nil, false
}

// RulesFrom returns every rule leaving the given status, in configuration order
func RulesFrom(def model.WorkflowDefinition, from model.SaleStatus) []model.TransitionRule {
	var out []model.TransitionRule
	seen := make(map[model.SaleStatus]bool)
	for _, rule := range def.Transitions {
		if rule.From != from || seen[rule.To] {
			continue
		}
		seen[rule.To] = true
		out = append(out, rule)
	}
	return out
}

// ValidateDefinition rejects rule sets that would be ambiguous or unusable at runtime.
// It runs when an administrator saves a configuration.
func ValidateDefinition(def model.WorkflowDefinition) error {
	seen := make(map[[2]model.SaleStatus]int, len(def.Transitions))
	for i, rule := range def.Transitions {
		from := model.SaleStatus(strings.TrimSpace(string(rule.From)))
		to := model.SaleStatus(strings.TrimSpace(string(rule.To)))
		if from == "" || to == "" {
			return fmt.Errorf("%w: transitions[%d]: from and to are required", ErrInvalidTransition, i)
		}
		if from == to {
			return fmt.Errorf("%w: transitions[%d]: from and to must differ", ErrInvalidTransition, i)
		}

		key := [2]model.SaleStatus{from, to}
		if first, ok := seen[key]; ok {
			return fmt.Errorf("%w: transitions[%d] repeats %s -> %s already defined at transitions[%d]",
				ErrDuplicateTransition, i, from, to, first)
		}
		seen[key] = i

		for _, role := range rule.AllowedRoles {
			if strings.TrimSpace(role) == "" {
				return fmt.Errorf("%w: transitions[%d]: allowed_roles contains an empty role", ErrInvalidTransition, i)
			}
		}

		for j, cond := range rule.Conditions {
			if strings.TrimSpace(cond.Label) == "" {
				return fmt.Errorf("%w: transitions[%d].conditions[%d]: label is required", ErrInvalidTransition, i, j)
			}
			switch cond.Type {
			case model.ConditionTypeBuiltIn:
				if cond.BuiltInKey == "" {
					return fmt.Errorf("%w: transitions[%d].conditions[%d]: built_in_key is required", ErrInvalidTransition, i, j)
				}
			case model.ConditionTypeCustom:
			default:
				return fmt.Errorf("%w: transitions[%d].conditions[%d]: unknown type %q", ErrInvalidTransition, i, j, cond.Type)
			}
		}
	}
	return nil
}
