package entities

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happy-geeks/geeks-core-library-sub000/pkg/apperror"
)

func strPtr(s string) *string {
	return &s
}

func TestGetTablePrefix(t *testing.T) {
	tests := []struct {
		name     string
		settings *Settings
		want     string
	}{
		{"nil settings", nil, ""},
		{"no dedicated prefix", &Settings{}, ""},
		{"prefix without underscore", &Settings{DedicatedTablePrefix: "basket"}, "basket_"},
		{"prefix with underscore", &Settings{DedicatedTablePrefix: "basket_"}, "basket_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetTablePrefix(tt.settings))
		})
	}
}

func TestFieldOptionsKey(t *testing.T) {
	assert.Equal(t, "price", FieldOptionsKey("Price", ""))
	assert.Equal(t, "price_nl", FieldOptionsKey("Price", "NL"))
}

func TestFieldOptionsForPrefersLanguageSpecific(t *testing.T) {
	settings := &Settings{
		FieldOptions: map[string]FieldOptions{
			"title":    {InputType: "input"},
			"title_nl": {InputType: "htmleditor", SaveMode: SaveModeHTML},
		},
	}

	options, ok := settings.FieldOptionsFor("title", "nl")
	require.True(t, ok)
	assert.Equal(t, SaveModeHTML, options.SaveMode)

	options, ok = settings.FieldOptionsFor("title", "de")
	require.True(t, ok)
	assert.Equal(t, SaveModePlain, options.SaveMode)

	_, ok = settings.FieldOptionsFor("missing", "nl")
	assert.False(t, ok)
}

func TestParseFieldOptions(t *testing.T) {
	tests := []struct {
		name     string
		property EntityProperty
		want     FieldOptions
		wantErr  bool
	}{
		{
			name:     "plain input",
			property: EntityProperty{PropertyName: "title", InputType: "input"},
			want:     FieldOptions{InputType: "input", SaveMode: SaveModePlain},
		},
		{
			name: "secure input defaults to sha512",
			property: EntityProperty{
				PropertyName: "password",
				InputType:    "secure-input",
			},
			want: FieldOptions{
				InputType:      "secure-input",
				SaveMode:       SaveModeSecure,
				SecurityMethod: SecurityMethodSHA512,
			},
		},
		{
			name: "secure input with aes and key",
			property: EntityProperty{
				PropertyName: "iban",
				InputType:    "secure-input",
				Options:      strPtr(`{"securityMethod": "AES", "securityKey": "sleutel"}`),
			},
			want: FieldOptions{
				InputType:      "secure-input",
				SaveMode:       SaveModeSecure,
				SecurityMethod: SecurityMethodAES,
				SecurityKey:    "sleutel",
			},
		},
		{
			name: "secure input with unknown method",
			property: EntityProperty{
				PropertyName: "password",
				InputType:    "secure-input",
				Options:      strPtr(`{"securityMethod": "ROT13"}`),
			},
			wantErr: true,
		},
		{
			name: "date picker narrows to date",
			property: EntityProperty{
				PropertyName: "delivery_date",
				InputType:    "date-time picker",
				Options:      strPtr(`{"type": "date"}`),
			},
			want: FieldOptions{
				InputType:   "date-time picker",
				SaveMode:    SaveModeDatePart,
				Granularity: DatePartDate,
			},
		},
		{
			name:     "numeric input",
			property: EntityProperty{PropertyName: "price", InputType: "numeric-input"},
			want:     FieldOptions{InputType: "numeric-input", SaveMode: SaveModeNumeric},
		},
		{
			name:     "html editor",
			property: EntityProperty{PropertyName: "description", InputType: "htmleditor"},
			want:     FieldOptions{InputType: "htmleditor", SaveMode: SaveModeHTML},
		},
		{
			name: "combobox saved as item link",
			property: EntityProperty{
				PropertyName: "manufacturer",
				InputType:    "combobox",
				Options:      strPtr(`{"saveValueAsItemLink": true, "linkTypeNumber": 800, "currentItemIsDestinationId": true}`),
			},
			want: FieldOptions{
				InputType:                "combobox",
				SaveMode:                 SaveModeLinkedSelection,
				LinkType:                 800,
				CurrentItemIsDestination: true,
			},
		},
		{
			name: "combobox as link without link type is a configuration error",
			property: EntityProperty{
				PropertyName: "manufacturer",
				InputType:    "combobox",
				Options:      strPtr(`{"saveValueAsItemLink": true}`),
			},
			wantErr: true,
		},
		{
			name: "combobox without link saving stays plain",
			property: EntityProperty{
				PropertyName: "color",
				InputType:    "combobox",
				Options:      strPtr(`{"dataQuery": "SELECT id, title FROM colors"}`),
			},
			want: FieldOptions{InputType: "combobox", SaveMode: SaveModePlain},
		},
		{
			name: "readonly and seo flags carried over",
			property: EntityProperty{
				PropertyName:     "sku",
				InputType:        "input",
				ReadOnly:         true,
				AlsoSaveSeoValue: true,
			},
			want: FieldOptions{
				InputType:        "input",
				SaveMode:         SaveModePlain,
				ReadOnly:         true,
				AlsoSaveSeoValue: true,
			},
		},
		{
			name: "invalid options json",
			property: EntityProperty{
				PropertyName: "broken",
				InputType:    "input",
				Options:      strPtr(`{not json`),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			options, err := ParseFieldOptions(&tt.property)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperror.ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, options)
		})
	}
}

func TestApplyEntityRow(t *testing.T) {
	settings := defaultSettings("product")
	entity := &Entity{
		ID:                   3,
		Name:                 "product",
		ModuleID:             700,
		AcceptedChildTypes:   "variant, image,",
		DeleteAction:         "hide",
		StoreType:            "table",
		DedicatedTablePrefix: "product",
		SaveHistory:          true,
		QueryAfterUpdate:     strPtr("UPDATE stats SET dirty = 1"),
	}

	require.NoError(t, applyEntityRow(settings, entity))
	assert.Equal(t, DeleteActionHide, settings.DeleteAction)
	assert.Equal(t, []string{"variant", "image"}, settings.AcceptedChildTypes)
	assert.Equal(t, "UPDATE stats SET dirty = 1", settings.QueryAfterUpdate)
	assert.Equal(t, 700, settings.ModuleID)
}

func TestApplyEntityRowUnknownDeleteAction(t *testing.T) {
	settings := defaultSettings("product")
	err := applyEntityRow(settings, &Entity{Name: "product", DeleteAction: "obliterate"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrConfiguration))
}

func TestApplyEntityRowUnknownStoreType(t *testing.T) {
	settings := defaultSettings("product")
	err := applyEntityRow(settings, &Entity{Name: "product", DeleteAction: "archive", StoreType: "graph"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrConfiguration))
}
