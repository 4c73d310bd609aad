package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessRightsHas(t *testing.T) {
	rights := AccessRead | AccessUpdate

	assert.True(t, rights.Has(AccessRead))
	assert.True(t, rights.Has(AccessUpdate))
	assert.False(t, rights.Has(AccessDelete))
	assert.False(t, rights.Has(AccessRead|AccessDelete))
	assert.True(t, AccessAll.Has(AccessCreate|AccessDelete))
}

func TestEntityActionRequiredRights(t *testing.T) {
	assert.Equal(t, AccessRead, ActionRead.RequiredRights())
	assert.Equal(t, AccessCreate, ActionCreate.RequiredRights())
	assert.Equal(t, AccessUpdate, ActionUpdate.RequiredRights())
	assert.Equal(t, AccessDelete, ActionDelete.RequiredRights())
}

func TestCombineRights(t *testing.T) {
	tests := []struct {
		name         string
		moduleRights AccessRights
		moduleFound  bool
		itemRights   AccessRights
		itemFound    bool
		want         AccessRights
	}{
		{
			name: "no grants at all gives full rights",
			want: AccessAll,
		},
		{
			name:         "module grant only",
			moduleRights: AccessRead | AccessUpdate,
			moduleFound:  true,
			want:         AccessRead | AccessUpdate,
		},
		{
			name:         "item grant replaces module grant",
			moduleRights: AccessRead | AccessUpdate,
			moduleFound:  true,
			itemRights:   AccessRead,
			itemFound:    true,
			want:         AccessRead,
		},
		{
			name:         "zero item grant still replaces module grant",
			moduleRights: AccessAll,
			moduleFound:  true,
			itemRights:   AccessNothing,
			itemFound:    true,
			want:         AccessNothing,
		},
		{
			name:       "item grant without module grant",
			itemRights: AccessRead | AccessDelete,
			itemFound:  true,
			want:       AccessRead | AccessDelete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := combineRights(tt.moduleRights, tt.moduleFound, tt.itemRights, tt.itemFound)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadonlyDowngradesToRead(t *testing.T) {
	// The readonly flag forces effective rights down to read-only even for a
	// user whose bitmask includes update.
	effective := effectiveRights(AccessAll, true)

	assert.True(t, effective.Has(ActionRead.RequiredRights()))
	assert.False(t, effective.Has(ActionUpdate.RequiredRights()))
	assert.False(t, effective.Has(ActionDelete.RequiredRights()))

	assert.Equal(t, AccessAll, effectiveRights(AccessAll, false))
	assert.Equal(t, AccessNothing, effectiveRights(AccessUpdate, true))
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"nil", nil, false},
		{"true bool", true, true},
		{"false bool", false, false},
		{"one int", int64(1), true},
		{"zero int", int64(0), false},
		{"one bytes", []byte("1"), true},
		{"zero bytes", []byte("0"), false},
		{"false string", "false", false},
		{"text string", "ok", true},
		{"empty string", "", false},
		{"float", float64(2), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truthy(tt.value))
		})
	}
}
