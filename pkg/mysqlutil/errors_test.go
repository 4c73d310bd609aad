package mysqlutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestHasErrorNumber(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "duplicate entry",
			err:  &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-seo_title' for key 'item_key'"},
			want: true,
		},
		{
			name: "wrapped duplicate entry",
			err:  fmt.Errorf("insert detail: %w", &mysql.MySQLError{Number: 1062}),
			want: true,
		},
		{
			name: "different number",
			err:  &mysql.MySQLError{Number: 1146, Message: "Table 'db.aggregate_order' doesn't exist"},
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("duplicate entry"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicateEntry(tt.err))
		})
	}
}

func TestIsNoSuchTable(t *testing.T) {
	err := fmt.Errorf("query aggregate table: %w", &mysql.MySQLError{Number: 1146})
	assert.True(t, IsNoSuchTable(err))
	assert.False(t, IsDuplicateEntry(err))
}
