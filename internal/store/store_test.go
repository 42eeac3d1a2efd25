package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lido-go/registry-reconciler/internal/registry"
	"github.com/lido-go/registry-reconciler/internal/testutil"
)

var testModule = common.HexToAddress("0x00000000000000000000000000000000000003")

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "registry.db")
	s, err := Open(Config{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreGetMetaMissing(t *testing.T) {
	s := newTestStore(t)
	meta, err := s.GetMeta(context.Background(), testModule)
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestStoreApplyAndGetMeta(t *testing.T) {
	s := newTestStore(t)
	meta := testutil.NewTestMeta(testModule, 100, 7)

	require.NoError(t, s.Apply(context.Background(), testModule, registry.Batch{Meta: meta}))

	got, err := s.GetMeta(context.Background(), testModule)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, meta.BlockNumber, got.BlockNumber)
	assert.Equal(t, meta.BlockHash, got.BlockHash)
	assert.Equal(t, meta.KeysOpIndex, got.KeysOpIndex)
}

func TestStoreApplyOperatorsAndKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	op := testutil.NewTestOperator(testModule, 0, 3, 1)
	keys := []*registry.Key{
		testutil.NewTestKey(testModule, 0, 0, true),
		testutil.NewTestKey(testModule, 0, 1, false),
		testutil.NewTestKey(testModule, 0, 2, false),
	}

	require.NoError(t, s.Apply(ctx, testModule, registry.Batch{
		Meta:      testutil.NewTestMeta(testModule, 1, 1),
		Operators: []*registry.Operator{op},
	}))
	require.NoError(t, s.Apply(ctx, testModule, registry.Batch{KeyUpserts: keys}))

	gotOps, err := s.FindAllOperators(ctx, testModule)
	require.NoError(t, err)
	require.Len(t, gotOps, 1)
	assert.Equal(t, uint64(3), gotOps[0].TotalSigningKeys)

	gotKeys, err := s.FindKeysByOperator(ctx, testModule, 0)
	require.NoError(t, err)
	require.Len(t, gotKeys, 3)
	assert.True(t, gotKeys[0].Used)

	used, err := s.FindUsedKeys(ctx, testModule)
	require.NoError(t, err)
	require.Len(t, used, 1)
	assert.Equal(t, uint32(0), used[0].Index)
}

func TestStoreKeyTailDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	keys := []*registry.Key{
		testutil.NewTestKey(testModule, 0, 0, true),
		testutil.NewTestKey(testModule, 0, 1, false),
		testutil.NewTestKey(testModule, 0, 2, false),
	}
	require.NoError(t, s.Apply(ctx, testModule, registry.Batch{KeyUpserts: keys}))

	require.NoError(t, s.Apply(ctx, testModule, registry.Batch{
		KeyDeletes: []registry.KeyDelete{{OperatorIndex: 0, FromIndex: 1}},
	}))

	remaining, err := s.FindKeysByOperator(ctx, testModule, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, uint32(0), remaining[0].Index)
}

func TestStoreUpsertOverwritesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	k := testutil.NewTestKey(testModule, 0, 0, false)
	require.NoError(t, s.Apply(ctx, testModule, registry.Batch{KeyUpserts: []*registry.Key{k}}))

	used := testutil.NewTestKey(testModule, 0, 0, true)
	require.NoError(t, s.Apply(ctx, testModule, registry.Batch{KeyUpserts: []*registry.Key{used}}))

	keys, err := s.FindKeysByOperator(ctx, testModule, 0)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Used)
}

func TestStoreApplyIsTransactional(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Apply(ctx, testModule, registry.Batch{
		Meta:      testutil.NewTestMeta(testModule, 1, 1),
		Operators: []*registry.Operator{testutil.NewTestOperator(testModule, 0, 2, 0)},
	}))

	meta, err := s.GetMeta(ctx, testModule)
	require.NoError(t, err)
	require.NotNil(t, meta)

	ops, err := s.FindAllOperators(ctx, testModule)
	require.NoError(t, err)
	require.Len(t, ops, 1)
}
