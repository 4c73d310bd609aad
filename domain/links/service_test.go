package links

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happy-geeks/geeks-core-library-sub000/domain/permissions"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/apperror"
)

func TestPermissionDenied(t *testing.T) {
	err := permissionDenied("", permissions.ActionUpdate, 42, 7)

	require.True(t, errors.Is(err, apperror.ErrPermissionDenied))

	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "update", appErr.Details["action"])
	assert.Equal(t, uint64(42), appErr.Details["itemId"])
	assert.Equal(t, uint64(7), appErr.Details["userId"])
}

func TestPermissionDeniedKeepsPrecheckMessage(t *testing.T) {
	err := permissionDenied("Order is already shipped", permissions.ActionDelete, 42, 7)

	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Order is already shipped", appErr.Message)
	assert.Equal(t, uint64(42), appErr.Details["itemId"])
}

func TestLinkQueriesShareTheIdentifyingTriple(t *testing.T) {
	// AddItemLink stays idempotent because the lookup before the insert, and
	// the re-lookup after losing a duplicate-key race, both match the unique
	// key over (item_id, destination_item_id, type).
	find := findLinkQuery("shop_")
	insert := insertLinkQuery("shop_")

	assert.Equal(t, "SELECT id FROM `shop_wiser_itemlink` WHERE item_id = ? AND destination_item_id = ? AND type = ?", find)
	assert.Contains(t, insert, "INSERT INTO `shop_wiser_itemlink` (item_id, destination_item_id, type, ordering)")
	assert.Contains(t, insert, "COALESCE(MAX(ordering), 0) + 1")
	assert.Contains(t, insert, "WHERE destination_item_id = ? AND type = ?")
}

func TestArchiveColumnListsAreExplicit(t *testing.T) {
	// Archive copies must enumerate columns so archive tables may carry a
	// superset or differently ordered schema.
	assert.NotContains(t, itemLinkColumns, "*")
	assert.NotContains(t, itemLinkDetailColumns, "*")

	for _, column := range []string{"`id`", "`item_id`", "`destination_item_id`", "`ordering`", "`type`", "`added_on`"} {
		assert.Contains(t, itemLinkColumns, column)
	}
	for _, column := range []string{"`id`", "`language_code`", "`itemlink_id`", "`groupname`", "`key`", "`value`", "`long_value`"} {
		assert.Contains(t, itemLinkDetailColumns, column)
	}
}
