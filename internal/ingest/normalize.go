package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/shopspring/decimal"
)

var errMissingAmount = errors.New("amount is required")

// Normalize converts one raw row into a canonical expense record. index is
// the row's position in the batch and is only used for diagnostics.
func Normalize(row model.RawRow, index int) (model.ExpenseRecord, error) {
	amount, err := parseAmount(row[model.ColumnAmount])
	if err != nil {
		value, _ := row.Text(model.ColumnAmount)
		return model.ExpenseRecord{}, &model.RowParseError{
			Row:   index,
			Field: model.ColumnAmount,
			Value: value,
			Err:   err,
		}
	}

	reason, _ := row.Text(model.ColumnPolicyViolation)

	return model.ExpenseRecord{
		Date:                  text(row, model.ColumnTransactionDate),
		BusinessType:          text(row, model.ColumnBusinessType),
		BusinessPurpose:       text(row, model.ColumnBusinessPurpose),
		Vendor:                text(row, model.ColumnVendor),
		Amount:                amount,
		PaymentType:           text(row, model.ColumnPaymentType),
		PersonalExpense:       yes(row, model.ColumnPersonalExpense),
		PolicyViolationFlag:   yes(row, model.ColumnPolicyViolationFlag),
		PolicyViolationReason: reason,
		ReceiptAvailable:      yes(row, model.ColumnReceipt),
		PreApproved:           yes(row, model.ColumnPreApproved),
	}, nil
}

// RowFromRecord renders a canonical record back into a raw row using the
// source column names. Normalizing the result yields rec again.
func RowFromRecord(rec model.ExpenseRecord) model.RawRow {
	return model.RawRow{
		model.ColumnTransactionDate:     rec.Date,
		model.ColumnBusinessType:        rec.BusinessType,
		model.ColumnBusinessPurpose:     rec.BusinessPurpose,
		model.ColumnVendor:              rec.Vendor,
		model.ColumnAmount:              rec.Amount,
		model.ColumnPaymentType:         rec.PaymentType,
		model.ColumnPersonalExpense:     yesNo(rec.PersonalExpense),
		model.ColumnPolicyViolationFlag: yesNo(rec.PolicyViolationFlag),
		model.ColumnPolicyViolation:     rec.PolicyViolationReason,
		model.ColumnReceipt:             yesNo(rec.ReceiptAvailable),
		model.ColumnPreApproved:         yesNo(rec.PreApproved),
	}
}

func text(row model.RawRow, col string) string {
	s, _ := row.Text(col)
	return s
}

// yes is true only when the cell's text equals "yes", ignoring case. A
// native true renders as "true" and so reads as false.
func yes(row model.RawRow, col string) bool {
	v, ok := row[col]
	if !ok || v == nil {
		return false
	}
	return strings.EqualFold(model.CellText(v), "yes")
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func parseAmount(v any) (float64, error) {
	switch val := v.(type) {
	case nil:
		return 0, errMissingAmount
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	}

	s := strings.TrimSpace(model.CellText(v))
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return 0, errMissingAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("not a number: %w", err)
	}
	f, _ := d.Float64()
	return f, nil
}
