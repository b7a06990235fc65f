package engine

import (
	"context"
	"testing"

	"github.com/Veraticus/spice-audit/internal/llm"
	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGenerator_Generate(t *testing.T) {
	ctx := context.Background()
	gen := NewMockGenerator()

	tests := []struct {
		name         string
		vendor       string
		wantCategory string
		personal     bool
	}{
		{name: "airline", vendor: "Delta Airlines", wantCategory: "Travel"},
		{name: "coffee", vendor: "Starbucks #1123", wantCategory: "Meals"},
		{name: "office supplies", vendor: "Staples", wantCategory: "Office Supplies"},
		{name: "event tickets", vendor: "Ticketmaster", wantCategory: "Entertainment"},
		{name: "phone bill", vendor: "Verizon Wireless", wantCategory: "Communications", personal: true},
		{name: "unknown vendor", vendor: "Acme Widgets", wantCategory: "Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := model.ExpenseRecord{Vendor: tt.vendor, Amount: 12, PersonalExpense: tt.personal}

			text, err := gen.Generate(ctx, llm.BuildPrompt(rec), DefaultMaxTokens)
			require.NoError(t, err)

			res := llm.ExtractClassification(text)
			assert.False(t, res.Degraded)
			assert.Equal(t, tt.wantCategory, res.Category)
			require.NotNil(t, res.IsPersonal)
			assert.Equal(t, tt.personal, *res.IsPersonal)
		})
	}
}

func TestMockGenerator_RecordsCalls(t *testing.T) {
	ctx := context.Background()
	gen := NewMockGenerator()

	_, err := gen.Generate(ctx, llm.BuildPrompt(model.ExpenseRecord{Vendor: "Uber"}), 42)
	require.NoError(t, err)

	calls := gen.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Uber", calls[0].Vendor)
	assert.Equal(t, 42, calls[0].MaxTokens)
	assert.Contains(t, calls[0].Response, `"category":"Travel"`)

	gen.Reset()
	assert.Zero(t, gen.CallCount())
}
