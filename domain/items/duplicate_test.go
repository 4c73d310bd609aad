package items

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuplicateInternalStopsAtDepthCap(t *testing.T) {
	svc := newTestService(t)

	// Past the cap the branch is dropped before any row is touched, so no
	// database handle is needed.
	newID, err := svc.duplicateInternal(context.Background(), nil, 7, "product", 0, "", 0, MaximumLevelsToDuplicate+1, map[uint64]uint64{}, SaveOptions{})

	require.NoError(t, err)
	assert.Zero(t, newID)
}

func TestDuplicateInternalReusesEarlierCopy(t *testing.T) {
	svc := newTestService(t)
	duplicated := map[uint64]uint64{7: 99}

	newID, err := svc.duplicateInternal(context.Background(), nil, 7, "product", 0, "", 0, 1, duplicated, SaveOptions{})

	require.NoError(t, err)
	assert.Equal(t, uint64(99), newID)
}
