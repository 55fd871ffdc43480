package workflow

import "salesflow/internal/model"

// ChecklistItem is one condition of a rule as shown to the user.
// Met is nil for custom conditions, which only the user can confirm.
type ChecklistItem struct {
	Condition model.Condition `json:"condition"`
	Met       *bool           `json:"met"`
}

// TransitionOption is a configured target status with its current evaluation
type TransitionOption struct {
	To        model.SaleStatus `json:"to"`
	Result    Result           `json:"result"`
	Checklist []ChecklistItem  `json:"checklist"`
}

// Checklist evaluates every built-in condition of rule and leaves custom ones open
func Checklist(rule model.TransitionRule, sale SaleData) []ChecklistItem {
	items := make([]ChecklistItem, 0, len(rule.Conditions))
	for _, cond := range rule.Conditions {
		item := ChecklistItem{Condition: cond}
		if cond.Type == model.ConditionTypeBuiltIn {
			met := EvaluateCondition(cond.BuiltInKey, sale)
			item.Met = &met
		}
		items = append(items, item)
	}
	return items
}
