package llm

import (
	"fmt"
	"strings"

	"github.com/Veraticus/spice-audit/internal/model"
)

const systemPrompt = "You are a corporate expense auditor. You MUST respond with ONLY a valid JSON object. Do not include any explanatory text, markdown formatting, or commentary before or after the JSON."

// BuildPrompt renders an expense record into a classification request. The
// output depends only on rec.
func BuildPrompt(rec model.ExpenseRecord) string {
	categories := model.Categories()
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}

	personal := "No"
	if rec.PersonalExpense {
		personal = "Yes"
	}

	reason := rec.PolicyViolationReason
	if reason == "" {
		reason = "(none reported)"
	}

	var b strings.Builder
	b.WriteString("Classify this expense report line item.\n\n")
	fmt.Fprintf(&b, "Categories: %s\n\n", strings.Join(names, ", "))
	b.WriteString("Expense Details:\n")
	fmt.Fprintf(&b, "Business Purpose: %s\n", rec.BusinessPurpose)
	fmt.Fprintf(&b, "Vendor: %s\n", rec.Vendor)
	fmt.Fprintf(&b, "Amount: %.2f\n", rec.Amount)
	fmt.Fprintf(&b, "Payment Type: %s\n", rec.PaymentType)
	fmt.Fprintf(&b, "Marked Personal: %s\n", personal)
	fmt.Fprintf(&b, "Policy Violation: %s\n\n", reason)
	b.WriteString(`Pick exactly one category from the list. Decide whether the expense is personal rather than business. ` +
		`If the expense breaks a typical corporate expense policy, give a short reason, otherwise use an empty string.

Respond with ONLY a JSON object with exactly these three keys and no other text:
{"category": "<category>", "is_personal": <true or false>, "policy_violation_reason": "<reason or empty string>"}`)

	return b.String()
}
