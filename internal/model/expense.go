// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"strconv"
	"time"
)

// Source column names of an expense report.
const (
	ColumnPersonalExpense     = "Personal Expense"
	ColumnPolicyViolationFlag = "Policy Violation Flag"
	ColumnPolicyViolation     = "Policy Violation"
	ColumnBusinessType        = "Business Type"
	ColumnBusinessPurpose     = "Business Purpose"
	ColumnTransactionDate     = "Transaction Date"
	ColumnPaymentType         = "Payment Type"
	ColumnAmount              = "Amount"
	ColumnVendor              = "Vendor"
	ColumnReceipt             = "Receipt"
	ColumnPreApproved         = "Pre-Approved"
)

// RequiredColumns returns the columns every expense report must expose,
// in the order they are checked.
func RequiredColumns() []string {
	return []string{
		ColumnPersonalExpense,
		ColumnPolicyViolationFlag,
		ColumnPolicyViolation,
		ColumnBusinessType,
		ColumnBusinessPurpose,
		ColumnTransactionDate,
		ColumnPaymentType,
		ColumnAmount,
		ColumnVendor,
		ColumnReceipt,
		ColumnPreApproved,
	}
}

// RawRow maps a column name to a loosely typed cell value as read from the
// source table. A nil or missing value means the cell was empty.
type RawRow map[string]any

// Has reports whether the row carries a non-nil value for col.
func (r RawRow) Has(col string) bool {
	v, ok := r[col]
	return ok && v != nil
}

// Text returns the textual form of the cell and whether it was present.
func (r RawRow) Text(col string) (string, bool) {
	v, ok := r[col]
	if !ok || v == nil {
		return "", false
	}
	return CellText(v), true
}

// CellText renders any cell value as text.
func CellText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format("2006-01-02")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// ExpenseRecord is a row after type normalization. Every field is populated.
type ExpenseRecord struct {
	Date                  string  `json:"date"`
	BusinessType          string  `json:"business_type"`
	BusinessPurpose       string  `json:"business_purpose"`
	Vendor                string  `json:"vendor"`
	PaymentType           string  `json:"payment_type"`
	PolicyViolationReason string  `json:"policy_violation_reason"`
	Amount                float64 `json:"amount"`
	PersonalExpense       bool    `json:"personal_expense"`
	PolicyViolationFlag   bool    `json:"policy_violation_flag"`
	ReceiptAvailable      bool    `json:"receipt_available"`
	PreApproved           bool    `json:"pre_approved"`
}

// EnrichedExpense is an ExpenseRecord with the classifier output overlaid.
type EnrichedExpense struct {
	ExpenseRecord
	Category               string `json:"category"`
	IsPersonal             bool   `json:"is_personal"`
	ClassificationDegraded bool   `json:"classification_degraded"`
}
