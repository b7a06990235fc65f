package ingest

import "github.com/Veraticus/spice-audit/internal/model"

// ValidateColumns confirms that every required column is present in columns.
// It returns a *model.SchemaError naming the first missing column, checked
// in required-list order. Matching is by exact name.
func ValidateColumns(columns []string, required []string) error {
	present := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		present[col] = struct{}{}
	}

	for _, col := range required {
		if _, ok := present[col]; !ok {
			return &model.SchemaError{Column: col}
		}
	}

	return nil
}
