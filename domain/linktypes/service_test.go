package linktypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetTablePrefixForLink(t *testing.T) {
	tests := []struct {
		name     string
		settings *Settings
		want     string
	}{
		{"nil settings", nil, ""},
		{"shared table", &Settings{Type: 1}, ""},
		{"dedicated table", &Settings{Type: 5100, UseDedicatedTable: true}, "5100_"},
		{
			// Parent-id links are not stored as link rows, so a dedicated
			// table flag has nothing to apply to.
			name:     "parent id wins over dedicated table",
			settings: &Settings{Type: 5100, UseDedicatedTable: true, UseItemParentId: true},
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetTablePrefixForLink(tt.settings))
		})
	}
}

func TestSettingsFromRowNormalizesEnums(t *testing.T) {
	settings := settingsFromRow(&LinkType{
		ID:                  4,
		Type:                800,
		ConnectedEntityType: "product",
		Relationship:        "MANY-TO-MANY",
		Duplication:         "copy-item",
		CascadeDelete:       true,
	})

	assert.Equal(t, RelationshipManyToMany, settings.Relationship)
	assert.Equal(t, DuplicationCopyItem, settings.DuplicationMethod)
	assert.Equal(t, "product", settings.SourceEntityType)
	assert.True(t, settings.CascadeDelete)
}

func TestSettingsFromRowDefaults(t *testing.T) {
	settings := settingsFromRow(&LinkType{Type: 1, Relationship: "", Duplication: ""})

	assert.Equal(t, RelationshipOneToMany, settings.Relationship)
	assert.Equal(t, DuplicationNone, settings.DuplicationMethod)
}

func TestDefaultSettings(t *testing.T) {
	settings := defaultSettings(0, "order", "orderline")

	assert.Equal(t, "order", settings.SourceEntityType)
	assert.Equal(t, "orderline", settings.DestinationEntityType)
	assert.Equal(t, RelationshipOneToMany, settings.Relationship)
}
