package domain

import (
	"errors"
	"fmt"
)

// SelectionMode picks how a job walks the catalog.
type SelectionMode string

const (
	// SelectionModeAll iterates the entire catalog by cursor.
	SelectionModeAll SelectionMode = "all"
	// SelectionModeIDs iterates a fixed product id list by offset.
	SelectionModeIDs SelectionMode = "ids"
)

const (
	DefaultPageLimit = 25
	MaxPageLimit     = 250
)

// Selection describes the unit of work of a job. It is chosen once at
// creation and never mutated.
type Selection struct {
	Mode  SelectionMode `json:"mode"`
	IDs   []string      `json:"ids,omitempty"`
	Limit int           `json:"limit,omitempty"`
}

// Validate checks the selection shape.
func (s Selection) Validate() error {
	switch s.Mode {
	case SelectionModeAll:
	case SelectionModeIDs:
		if len(s.IDs) == 0 {
			return errors.New("selection.ids must not be empty for mode ids")
		}
		for i, id := range s.IDs {
			if id == "" {
				return fmt.Errorf("selection.ids[%d] must not be empty", i)
			}
		}
	case "":
		return errors.New("selection.mode is required")
	default:
		return fmt.Errorf("selection.mode must be %q or %q, got %q", SelectionModeAll, SelectionModeIDs, s.Mode)
	}
	return nil
}

// PageLimit returns the selection's limit clamped to the platform bounds.
func (s Selection) PageLimit() int {
	return ClampLimit(s.Limit)
}

// ClampLimit applies the default page size to an unset (zero) limit and
// clamps everything else to [1, MaxPageLimit].
func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultPageLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}
