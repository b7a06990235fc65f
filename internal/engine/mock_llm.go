package engine

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/Veraticus/spice-audit/internal/model"
)

// MockGenerator is a test implementation of the Generator interface.
// It classifies deterministically by vendor name and, like a chatty model,
// wraps its JSON answer in prose.
type MockGenerator struct {
	calls []MockLLMCall
	mu    sync.Mutex
}

// MockLLMCall records details of a generation request.
type MockLLMCall struct {
	Prompt    string
	Response  string
	Vendor    string
	MaxTokens int
}

// NewMockGenerator creates a new mock generator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		calls: make([]MockLLMCall, 0),
	}
}

// Generate answers with a classification derived from the prompt's vendor
// and personal flag.
func (m *MockGenerator) Generate(_ context.Context, prompt string, maxTokens int) (string, error) {
	vendor := promptValue(prompt, "Vendor")
	vendorLower := strings.ToLower(vendor)

	var category model.Category
	switch {
	case containsAny(vendorLower, "airline", "delta", "united", "hotel", "marriott", "uber", "lyft"):
		category = model.CategoryTravel
	case containsAny(vendorLower, "restaurant", "cafe", "starbucks", "chipotle", "grill", "diner"):
		category = model.CategoryMeals
	case containsAny(vendorLower, "staples", "office depot", "officemax"):
		category = model.CategoryOfficeSupplies
	case containsAny(vendorLower, "ticketmaster", "theater", "cinema", "netflix"):
		category = model.CategoryEntertainment
	case containsAny(vendorLower, "verizon", "at&t", "comcast", "zoom"):
		category = model.CategoryCommunications
	default:
		category = model.CategoryOther
	}

	payload, err := json.Marshal(map[string]any{
		"category":                string(category),
		"is_personal":             promptValue(prompt, "Marked Personal") == "Yes",
		"policy_violation_reason": "",
	})
	if err != nil {
		return "", err
	}
	response := "Here is the classification: " + string(payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockLLMCall{
		Prompt:    prompt,
		Response:  response,
		Vendor:    vendor,
		MaxTokens: maxTokens,
	})

	return response, nil
}

// GetCalls returns all recorded calls for verification in tests.
func (m *MockGenerator) GetCalls() []MockLLMCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]MockLLMCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount returns the number of times Generate was called.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears all recorded calls.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make([]MockLLMCall, 0)
}

// promptValue returns the value of a "Label: value" line in prompt.
func promptValue(prompt, label string) string {
	prefix := label + ": "
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimPrefix(line, prefix)
		}
	}
	return ""
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
