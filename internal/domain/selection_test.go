package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "unset uses default", limit: 0, want: DefaultPageLimit},
		{name: "negative clamps to one", limit: -5, want: 1},
		{name: "minus one clamps to one", limit: -1, want: 1},
		{name: "one", limit: 1, want: 1},
		{name: "in range", limit: 25, want: 25},
		{name: "upper bound", limit: MaxPageLimit, want: MaxPageLimit},
		{name: "above upper bound", limit: 300, want: MaxPageLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampLimit(tt.limit))
			assert.Equal(t, tt.want, Selection{Mode: SelectionModeAll, Limit: tt.limit}.PageLimit())
		})
	}
}

func TestSelectionValidate(t *testing.T) {
	tests := []struct {
		name    string
		sel     Selection
		wantErr bool
	}{
		{name: "all", sel: Selection{Mode: SelectionModeAll}},
		{name: "all with negative limit", sel: Selection{Mode: SelectionModeAll, Limit: -5}},
		{name: "ids", sel: Selection{Mode: SelectionModeIDs, IDs: []string{"p1"}, Limit: 2}},
		{name: "missing mode", sel: Selection{}, wantErr: true},
		{name: "unknown mode", sel: Selection{Mode: "some"}, wantErr: true},
		{name: "ids without ids", sel: Selection{Mode: SelectionModeIDs}, wantErr: true},
		{name: "ids with blank id", sel: Selection{Mode: SelectionModeIDs, IDs: []string{"p1", ""}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sel.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
