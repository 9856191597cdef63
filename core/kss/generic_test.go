package kss_test

import (
	"context"
	"testing"

	"github.com/relabs-tech/provisioning/core/kss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func test_PutGetDelete(t *testing.T, driver kss.Driver) {
	ctx := context.Background()
	key := "some_key"

	_, err := driver.Get(ctx, key)
	require.ErrorIs(t, err, kss.ErrNotFound)

	require.NoError(t, driver.Put(ctx, key, []byte("123")))
	data, err := driver.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "123", string(data))

	// overwrite
	require.NoError(t, driver.Put(ctx, key, []byte("4567")))
	data, err = driver.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "4567", string(data))

	require.NoError(t, driver.Delete(ctx, key))
	_, err = driver.Get(ctx, key)
	require.ErrorIs(t, err, kss.ErrNotFound)
}
