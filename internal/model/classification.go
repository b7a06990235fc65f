package model

// Category is a spending category. Values outside the fixed set are kept
// verbatim.
type Category string

// Spending categories offered to the classifier.
const (
	CategoryTravel         Category = "Travel"
	CategoryMeals          Category = "Meals"
	CategoryOfficeSupplies Category = "Office Supplies"
	CategoryEntertainment  Category = "Entertainment"
	CategoryCommunications Category = "Communications"
	CategoryOther          Category = "Other"
)

// Categories returns the fixed category enumeration in prompt order.
func Categories() []Category {
	return []Category{
		CategoryTravel,
		CategoryMeals,
		CategoryOfficeSupplies,
		CategoryEntertainment,
		CategoryCommunications,
		CategoryOther,
	}
}

// Known reports whether c is one of the fixed categories.
func (c Category) Known() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// ClassificationResult holds what could be extracted from generated text.
// Empty strings and a nil IsPersonal mean the key was absent.
type ClassificationResult struct {
	IsPersonal            *bool
	Category              string
	PolicyViolationReason string
	Degraded              bool
}

// DefaultClassification is the result used when nothing could be extracted.
func DefaultClassification() ClassificationResult {
	personal := false
	return ClassificationResult{
		Category:   string(CategoryOther),
		IsPersonal: &personal,
		Degraded:   true,
	}
}
