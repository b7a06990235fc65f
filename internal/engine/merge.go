package engine

import (
	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/Veraticus/spice-audit/internal/service"
)

// Merge overlays a classification on its record. Classifier values win only
// when present: a non-empty category or reason, or an is_personal key that
// was actually returned. Otherwise the record's own business type, personal
// flag and reason are kept.
func Merge(rec model.ExpenseRecord, res model.ClassificationResult) model.EnrichedExpense {
	out := model.EnrichedExpense{
		ExpenseRecord:          rec,
		Category:               rec.BusinessType,
		IsPersonal:             rec.PersonalExpense,
		ClassificationDegraded: res.Degraded,
	}

	if res.Category != "" {
		out.Category = res.Category
	}
	if res.IsPersonal != nil {
		out.IsPersonal = *res.IsPersonal
	}
	if res.PolicyViolationReason != "" {
		out.PolicyViolationReason = res.PolicyViolationReason
	}

	return out
}

// CategoryTotals groups enriched expenses by category.
func CategoryTotals(expenses []model.EnrichedExpense) map[string]service.CategorySummary {
	totals := make(map[string]service.CategorySummary)
	for _, e := range expenses {
		s := totals[e.Category]
		s.Count++
		s.Amount += e.Amount
		totals[e.Category] = s
	}
	return totals
}
