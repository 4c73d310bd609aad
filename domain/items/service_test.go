package items

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happy-geeks/geeks-core-library-sub000/domain/entities"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/permissions"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/apperror"
)

func TestSetDetailReplacesExisting(t *testing.T) {
	item := &Item{}
	item.SetDetail("color", "", "red")
	item.SetDetail("color", "nl", "rood")
	item.SetDetail("color", "", "blue")

	require.Len(t, item.Details, 2)
	assert.Equal(t, "blue", item.GetDetail("color", "").Value)
	assert.Equal(t, "rood", item.GetDetail("color", "nl").Value)
	assert.True(t, item.Details[0].Changed)
}

func TestGetDetailSkipsLinkProperties(t *testing.T) {
	item := &Item{
		Details: []ItemDetail{
			{Key: "ordering", IsLinkProperty: true, ItemLinkID: 5, Value: "1"},
			{Key: "ordering", Value: "2"},
		},
	}

	detail := item.GetDetail("ordering", "")

	require.NotNil(t, detail)
	assert.Equal(t, "2", detail.Value)
}

func TestStoredKeyIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, storedKey("Price", "NL"), storedKey("price", "nl"))
	assert.NotEqual(t, storedKey("price", "nl"), storedKey("price", "de"))
}

func TestStoredDetailPrefersLongValue(t *testing.T) {
	long := "the long version"
	detail := storedDetail{Value: "short", LongValue: &long}
	assert.Equal(t, "the long version", detail.storedValue())

	empty := ""
	detail = storedDetail{Value: "short", LongValue: &empty}
	assert.Equal(t, "short", detail.storedValue())

	detail = storedDetail{Value: "short"}
	assert.Equal(t, "short", detail.storedValue())
}

func TestItemRowToItem(t *testing.T) {
	row := &itemRow{
		ID:                   12,
		UniqueUUID:           "uuid-12",
		ParentItemID:         3,
		EntityType:           "product",
		ModuleID:             700,
		PublishedEnvironment: 15,
		ReadOnly:             true,
		Removed:              true,
		Title:                "Product 12",
	}

	item := row.toItem()

	assert.Equal(t, uint64(12), item.ID)
	assert.Equal(t, "product", item.EntityType)
	require.NotNil(t, item.PublishedEnvironment)
	assert.Equal(t, EnvironmentAll, *item.PublishedEnvironment)
	require.NotNil(t, item.ReadOnly)
	assert.True(t, *item.ReadOnly)
	require.NotNil(t, item.Title)
	assert.Equal(t, "Product 12", *item.Title)
	assert.True(t, item.Removed)
	assert.True(t, item.ChangedOn.IsZero())
}

func TestUpdateBlocked(t *testing.T) {
	err := updateBlocked(&itemRow{Removed: true}, 12, false)
	require.True(t, errors.Is(err, apperror.ErrInvalidState))

	// A removed item rejects updates even when the save is part of its own
	// creation flow.
	err = updateBlocked(&itemRow{Removed: true}, 12, true)
	require.True(t, errors.Is(err, apperror.ErrInvalidState))

	err = updateBlocked(&itemRow{ReadOnly: true}, 12, false)
	require.True(t, errors.Is(err, apperror.ErrInvalidState))

	// The initial write of a fresh readonly item is allowed.
	require.NoError(t, updateBlocked(&itemRow{ReadOnly: true}, 12, true))
	require.NoError(t, updateBlocked(&itemRow{}, 12, false))
}

func TestScalarAssignmentsPartialUpdate(t *testing.T) {
	title := "Product 12"
	item := &Item{ID: 12, EntityType: "product", ParentItemID: 3, Title: &title}

	assignments, args := scalarAssignments(item, "tester")

	joined := strings.Join(assignments, ", ")
	assert.Contains(t, joined, "changed_on = NOW()")
	assert.Contains(t, joined, "title = ?")
	assert.Contains(t, joined, "parent_item_id = ?")
	assert.Contains(t, joined, "entity_type = IF(entity_type = '', ?, entity_type)")
	assert.NotContains(t, joined, "published_environment")
	assert.NotContains(t, joined, "readonly")
	assert.Equal(t, []any{"tester", "Product 12", uint64(3), "product"}, args)
}

func TestScalarAssignmentsSkipAbsentFields(t *testing.T) {
	assignments, args := scalarAssignments(&Item{ID: 12}, "tester")

	assert.Equal(t, []string{"changed_on = NOW()", "changed_by = ?"}, assignments)
	assert.Equal(t, []any{"tester"}, args)
}

func TestNeedsAutoIncrementValue(t *testing.T) {
	field := entities.AutoIncrementField{PropertyName: "number"}

	item := &Item{}
	assert.True(t, needsAutoIncrementValue(item, field))

	item.SetDetail("number", "", "")
	assert.True(t, needsAutoIncrementValue(item, field))

	item.SetDetail("number", "", "8")
	assert.False(t, needsAutoIncrementValue(item, field))
}

func TestAutoIncrementQueryStartsPastOtherItems(t *testing.T) {
	query := autoIncrementQuery("shop_")

	// MAX over the other items of the same entity type, plus one; the item
	// being saved never feeds its own maximum.
	assert.Contains(t, query, "COALESCE(MAX(CAST(detail.`value` AS UNSIGNED)), 0) + 1")
	assert.Contains(t, query, "item.entity_type = ?")
	assert.Contains(t, query, "detail.item_id <> ?")
	assert.Contains(t, query, "`shop_wiser_itemdetail`")
}

func TestArchiveAndRestoreStatementsAreSymmetric(t *testing.T) {
	archive := archiveItemStatements("shop_")
	restore := restoreItemStatements("shop_")

	require.Len(t, archive, 6)
	require.Len(t, restore, 6)

	for _, statement := range append(append([]string{}, archive...), restore...) {
		assert.NotContains(t, statement, "*")
	}

	// Every copy uses the same explicit column list in both directions, so a
	// restored item is byte-for-byte the archived one.
	for _, columns := range []string{itemColumns, itemDetailColumns, itemFileColumns} {
		archiveCopies := 0
		restoreCopies := 0
		for _, statement := range archive {
			archiveCopies += strings.Count(statement, columns)
		}
		for _, statement := range restore {
			restoreCopies += strings.Count(statement, columns)
		}
		assert.Equal(t, 2, archiveCopies)
		assert.Equal(t, archiveCopies, restoreCopies)
	}

	// The directions mirror each other: what archiving inserts into, restoring
	// deletes from, and the other way around.
	for _, table := range []string{"shop_wiser_item", "shop_wiser_itemdetail", "shop_wiser_itemfile"} {
		assert.Contains(t, strings.Join(archive, "\n"), "INSERT IGNORE INTO `"+table+"_archive`")
		assert.Contains(t, strings.Join(archive, "\n"), "DELETE FROM `"+table+"`")
		assert.Contains(t, strings.Join(restore, "\n"), "INSERT IGNORE INTO `"+table+"`")
		assert.Contains(t, strings.Join(restore, "\n"), "DELETE FROM `"+table+"_archive`")
	}
}

func TestPermissionDenied(t *testing.T) {
	err := permissionDenied("", permissions.ActionDelete, 42, 7)

	require.True(t, errors.Is(err, apperror.ErrPermissionDenied))

	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "delete", appErr.Details["action"])
	assert.Equal(t, uint64(42), appErr.Details["itemId"])
}

func TestWorkflowValuesIncludeScalarsAndDetails(t *testing.T) {
	svc := newTestService(t)
	title := "Order 7"
	item := &Item{
		ID:       7,
		ModuleID: 700,
		Title:    &title,
		Details: []ItemDetail{
			{Key: "status", Value: "open"},
			{Key: "note", IsLinkProperty: true, ItemLinkID: 1, Value: "skipped"},
		},
	}

	values := svc.workflowValues(item, SaveOptions{UserID: 9, Username: "tester"})

	assert.Equal(t, "7", values["itemId"])
	assert.Equal(t, "700", values["moduleId"])
	assert.Equal(t, "9", values["userId"])
	assert.Equal(t, "tester", values["username"])
	assert.Equal(t, "Order 7", values["title"])
	assert.Equal(t, "open", values["status"])
	assert.NotContains(t, values, "note")
}

func TestAggregationDataFlattensDetails(t *testing.T) {
	svc := newTestService(t)
	title := "Order 7"
	item := &Item{
		ID:         7,
		EntityType: "order",
		ModuleID:   700,
		Title:      &title,
		Details: []ItemDetail{
			{Key: "total", Value: 12.5},
			{Key: "remark", IsLinkProperty: true, ItemLinkID: 4, LinkType: 2, Value: "on link"},
		},
	}

	data := svc.aggregationData(item)

	assert.Equal(t, uint64(7), data.ID)
	assert.Equal(t, "order", data.EntityType)
	assert.Equal(t, "Order 7", data.Title)
	require.Len(t, data.Details, 2)
	assert.Equal(t, "12.5", data.Details[0].Value)
	assert.Equal(t, uint64(4), data.Details[1].ItemLinkID)
	assert.Equal(t, 2, data.Details[1].LinkType)
}

func TestRemoveProtectedDetails(t *testing.T) {
	settings := &entities.Settings{
		EntityType: "account",
		FieldOptions: map[string]entities.FieldOptions{
			"password": {SaveMode: entities.SaveModeSecure},
			"code":     {ReadOnly: true},
		},
	}
	details := []ItemDetail{
		{Key: "password", Value: "hashed"},
		{Key: "code", Value: "A-1"},
		{Key: "name", Value: "account one"},
	}

	filtered := removeProtectedDetails(settings, permissions.AccessRead, details)
	require.Len(t, filtered, 1)
	assert.Equal(t, "name", filtered[0].Key)

	// Update rights keep readonly fields visible, secure values never survive.
	details = []ItemDetail{
		{Key: "password", Value: "hashed"},
		{Key: "code", Value: "A-1"},
	}
	filtered = removeProtectedDetails(settings, permissions.AccessRead|permissions.AccessUpdate, details)
	require.Len(t, filtered, 1)
	assert.Equal(t, "code", filtered[0].Key)
}

func TestEnvironmentBitmask(t *testing.T) {
	assert.Equal(t, Environment(15), EnvironmentAll)
	assert.Equal(t, Environment(0), EnvironmentHidden)
	assert.NotZero(t, EnvironmentAll&EnvironmentLive)
	assert.Zero(t, EnvironmentHidden&EnvironmentLive)
}

func TestArchiveColumnListsAreExplicit(t *testing.T) {
	// Archive copies must enumerate columns so archive tables may carry a
	// superset or differently ordered schema.
	for _, columns := range []string{itemColumns, itemDetailColumns, itemFileColumns} {
		assert.NotContains(t, columns, "*")
	}

	for _, column := range []string{"`id`", "`entity_type`", "`moduleid`", "`published_environment`", "`readonly`", "`removed`", "`title`"} {
		assert.Contains(t, itemColumns, column)
	}
	for _, column := range []string{"`id`", "`item_id`", "`key`", "`value`", "`long_value`"} {
		assert.Contains(t, itemDetailColumns, column)
	}
	for _, column := range []string{"`id`", "`item_id`", "`property_name`", "`itemlink_id`"} {
		assert.Contains(t, itemFileColumns, column)
	}
}
