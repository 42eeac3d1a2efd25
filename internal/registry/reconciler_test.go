package registry

import (
	"context"
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lido-go/registry-reconciler/internal/config"
	"github.com/lido-go/registry-reconciler/internal/contract"
)

var testModule = common.HexToAddress("0x00000000000000000000000000000000000001")

// fakeChainReader is a programmable in-memory stand-in for *chain.Reader.
type fakeChainReader struct {
	resolved       ResolvedBlock
	resolveErr     error
	keysOpIndex    uint64
	operatorsCount uint64
	operators      []*contract.NodeOperator
	keysByOperator map[uint32][]*contract.SigningKey

	operatorFetchCalls int
	keyFetchCalls      int
}

func (f *fakeChainReader) ResolveBlock(ctx context.Context, ref BlockRef) (ResolvedBlock, error) {
	return f.resolved, f.resolveErr
}

func (f *fakeChainReader) FetchKeysOpIndex(ctx context.Context, blockHash common.Hash) (uint64, error) {
	return f.keysOpIndex, nil
}

func (f *fakeChainReader) FetchOperatorsCount(ctx context.Context, blockHash common.Hash) (uint64, error) {
	return f.operatorsCount, nil
}

func (f *fakeChainReader) FetchOperators(ctx context.Context, blockHash common.Hash, count uint64, batchSize int) ([]*contract.NodeOperator, error) {
	f.operatorFetchCalls++
	if count > uint64(len(f.operators)) {
		count = uint64(len(f.operators))
	}
	return f.operators[:count], nil
}

func (f *fakeChainReader) FetchSigningKeys(ctx context.Context, blockHash common.Hash, operatorIndex uint32, from, to uint32, batchSize int) ([]*contract.SigningKey, error) {
	if to <= from {
		return nil, nil
	}
	f.keyFetchCalls++
	full := f.keysByOperator[operatorIndex]
	if to > uint32(len(full)) {
		to = uint32(len(full))
	}
	if from >= to {
		return nil, nil
	}
	return full[from:to], nil
}

// fakeStore is an in-memory Store used to assert on committed state.
type fakeStore struct {
	meta      *Meta
	operators map[uint32]*Operator
	keys      map[uint32]map[uint32]*Key
}

func newFakeStore() *fakeStore {
	return &fakeStore{operators: map[uint32]*Operator{}, keys: map[uint32]map[uint32]*Key{}}
}

func (s *fakeStore) GetMeta(ctx context.Context, moduleAddress common.Address) (*Meta, error) {
	return s.meta, nil
}

func (s *fakeStore) FindAllOperators(ctx context.Context, moduleAddress common.Address) ([]*Operator, error) {
	out := make([]*Operator, 0, len(s.operators))
	for _, o := range s.operators {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *fakeStore) FindAllKeys(ctx context.Context, moduleAddress common.Address) ([]*Key, error) {
	var out []*Key
	for _, byIndex := range s.keys {
		for _, k := range byIndex {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *fakeStore) FindUsedKeys(ctx context.Context, moduleAddress common.Address) ([]*Key, error) {
	var out []*Key
	for _, byIndex := range s.keys {
		for _, k := range byIndex {
			if k.Used {
				out = append(out, k)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) FindKeysByOperator(ctx context.Context, moduleAddress common.Address, operatorIndex uint32) ([]*Key, error) {
	var out []*Key
	for _, k := range s.keys[operatorIndex] {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *fakeStore) Apply(ctx context.Context, moduleAddress common.Address, batch Batch) error {
	if batch.Meta != nil {
		s.meta = batch.Meta
	}
	for _, op := range batch.Operators {
		s.operators[op.Index] = op
	}
	for _, d := range batch.KeyDeletes {
		byIndex := s.keys[d.OperatorIndex]
		for idx := range byIndex {
			if idx >= d.FromIndex {
				delete(byIndex, idx)
			}
		}
	}
	for _, k := range batch.KeyUpserts {
		if s.keys[k.OperatorIndex] == nil {
			s.keys[k.OperatorIndex] = map[uint32]*Key{}
		}
		s.keys[k.OperatorIndex][k.Index] = k
	}
	return nil
}

func newTestKey(idx uint32, used bool, b byte) *contract.SigningKey {
	key := make([]byte, 48)
	key[0] = b
	sig := make([]byte, 96)
	sig[0] = b
	return &contract.SigningKey{Key: key, DepositSignature: sig, Used: used}
}

func newReconcilerUnderTest(chain *fakeChainReader, store *fakeStore) *Reconciler {
	return NewReconciler(ReconcilerConfig{
		ModuleAddress:     testModule,
		Variant:           config.VariantKeys,
		OperatorBatchSize: 100,
		KeyBatchSize:      100,
	}, chain, store, nil)
}

// S1 — Bootstrap.
func TestReconcilerBootstrap(t *testing.T) {
	chain := &fakeChainReader{
		resolved:       ResolvedBlock{Number: 100, Hash: common.HexToHash("0xAA"), Timestamp: 1700},
		keysOpIndex:    7,
		operatorsCount: 1,
		operators: []*contract.NodeOperator{
			{Active: true, TotalSigningKeys: 3, UsedSigningKeys: 1},
		},
		keysByOperator: map[uint32][]*contract.SigningKey{
			0: {newTestKey(0, true, 1), newTestKey(1, false, 2), newTestKey(2, false, 3)},
		},
	}
	store := newFakeStore()
	r := newReconcilerUnderTest(chain, store)

	meta, err := r.Update(context.Background(), BlockRefNumber(100))
	require.NoError(t, err)
	require.NotNil(t, meta)

	assert.Equal(t, uint64(100), meta.BlockNumber)
	assert.Equal(t, common.HexToHash("0xAA"), meta.BlockHash)
	assert.Equal(t, uint64(1700), meta.Timestamp)
	assert.Equal(t, uint64(7), meta.KeysOpIndex)

	operators, _ := store.FindAllOperators(context.Background(), testModule)
	require.Len(t, operators, 1)

	keys, _ := store.FindKeysByOperator(context.Background(), testModule, 0)
	require.Len(t, keys, 3)
	assert.True(t, keys[0].Used)
	assert.False(t, keys[1].Used)
	assert.False(t, keys[2].Used)
}

// S2 — No-op: repeating S1 performs no operator or key RPC traffic.
func TestReconcilerNoOp(t *testing.T) {
	chain := &fakeChainReader{
		resolved:       ResolvedBlock{Number: 100, Hash: common.HexToHash("0xAA"), Timestamp: 1700},
		keysOpIndex:    7,
		operatorsCount: 1,
		operators: []*contract.NodeOperator{
			{Active: true, TotalSigningKeys: 3, UsedSigningKeys: 1},
		},
		keysByOperator: map[uint32][]*contract.SigningKey{
			0: {newTestKey(0, true, 1), newTestKey(1, false, 2), newTestKey(2, false, 3)},
		},
	}
	store := newFakeStore()
	r := newReconcilerUnderTest(chain, store)

	_, err := r.Update(context.Background(), BlockRefNumber(100))
	require.NoError(t, err)

	_, err = r.Update(context.Background(), BlockRefNumber(100))
	require.NoError(t, err)

	assert.Equal(t, 1, chain.operatorFetchCalls, "no-op cycle must not refetch operators")
	assert.Equal(t, 1, chain.keyFetchCalls, "no-op cycle must not refetch any keys")
}

// S3 — Key added: all four keys are stored and k0 bytes are unchanged.
func TestReconcilerKeyAdded(t *testing.T) {
	chain := &fakeChainReader{
		resolved:       ResolvedBlock{Number: 100, Hash: common.HexToHash("0xAA"), Timestamp: 1700},
		keysOpIndex:    7,
		operatorsCount: 1,
		operators:      []*contract.NodeOperator{{Active: true, TotalSigningKeys: 3, UsedSigningKeys: 1}},
		keysByOperator: map[uint32][]*contract.SigningKey{
			0: {newTestKey(0, true, 1), newTestKey(1, false, 2), newTestKey(2, false, 3)},
		},
	}
	store := newFakeStore()
	r := newReconcilerUnderTest(chain, store)
	_, err := r.Update(context.Background(), BlockRefNumber(100))
	require.NoError(t, err)

	k0Before, _ := store.FindKeysByOperator(context.Background(), testModule, 0)

	chain.resolved = ResolvedBlock{Number: 101, Hash: common.HexToHash("0xBB"), Timestamp: 1701}
	chain.keysOpIndex = 8
	chain.operators = []*contract.NodeOperator{{Active: true, TotalSigningKeys: 4, UsedSigningKeys: 1}}
	chain.keysByOperator[0] = append(chain.keysByOperator[0], newTestKey(3, false, 4))

	_, err = r.Update(context.Background(), BlockRefNumber(101))
	require.NoError(t, err)

	keys, _ := store.FindKeysByOperator(context.Background(), testModule, 0)
	require.Len(t, keys, 4)
	assert.Equal(t, k0Before[0].Pubkey, keys[0].Pubkey, "k0 bytes must be unchanged across the update")
}

// S4 — Key used: compareOperator false, key-mirror refetches the whole range.
func TestReconcilerKeyUsed(t *testing.T) {
	chain := &fakeChainReader{
		resolved:       ResolvedBlock{Number: 100, Hash: common.HexToHash("0xAA"), Timestamp: 1700},
		keysOpIndex:    7,
		operatorsCount: 1,
		operators:      []*contract.NodeOperator{{Active: true, TotalSigningKeys: 4, UsedSigningKeys: 1}},
		keysByOperator: map[uint32][]*contract.SigningKey{
			0: {newTestKey(0, true, 1), newTestKey(1, false, 2), newTestKey(2, false, 3), newTestKey(3, false, 4)},
		},
	}
	store := newFakeStore()
	r := newReconcilerUnderTest(chain, store)
	_, err := r.Update(context.Background(), BlockRefNumber(100))
	require.NoError(t, err)

	k0Before, _ := store.FindKeysByOperator(context.Background(), testModule, 0)

	chain.resolved = ResolvedBlock{Number: 101, Hash: common.HexToHash("0xBB"), Timestamp: 1701}
	chain.keysOpIndex = 9
	chain.operators = []*contract.NodeOperator{{Active: true, TotalSigningKeys: 4, UsedSigningKeys: 2}}
	chain.keysByOperator[0][1].Used = true

	_, err = r.Update(context.Background(), BlockRefNumber(101))
	require.NoError(t, err)

	keys, _ := store.FindKeysByOperator(context.Background(), testModule, 0)
	require.Len(t, keys, 4)
	assert.Equal(t, k0Before[0].Pubkey, keys[0].Pubkey)
	assert.True(t, keys[1].Used)
}

// S5 — Key removed (testnet): tail delete removes trailing keys.
func TestReconcilerKeyRemoved(t *testing.T) {
	chain := &fakeChainReader{
		resolved:       ResolvedBlock{Number: 100, Hash: common.HexToHash("0xAA"), Timestamp: 1700},
		keysOpIndex:    8,
		operatorsCount: 1,
		operators:      []*contract.NodeOperator{{Active: true, TotalSigningKeys: 4, UsedSigningKeys: 1}},
		keysByOperator: map[uint32][]*contract.SigningKey{
			0: {newTestKey(0, true, 1), newTestKey(1, false, 2), newTestKey(2, false, 3), newTestKey(3, false, 4)},
		},
	}
	store := newFakeStore()
	r := newReconcilerUnderTest(chain, store)
	_, err := r.Update(context.Background(), BlockRefNumber(100))
	require.NoError(t, err)

	chain.resolved = ResolvedBlock{Number: 101, Hash: common.HexToHash("0xCC"), Timestamp: 1701}
	chain.keysOpIndex = 9
	chain.operators = []*contract.NodeOperator{{Active: true, TotalSigningKeys: 2, UsedSigningKeys: 1}}

	_, err = r.Update(context.Background(), BlockRefNumber(101))
	require.NoError(t, err)

	keys, _ := store.FindKeysByOperator(context.Background(), testModule, 0)
	assert.Len(t, keys, 2)
}

// S6 — Stale RPC: observed older block than stored meta is a silent no-op.
func TestReconcilerStaleSnapshot(t *testing.T) {
	chain := &fakeChainReader{
		resolved:       ResolvedBlock{Number: 90, Hash: common.HexToHash("0x90"), Timestamp: 1600},
		keysOpIndex:    7,
		operatorsCount: 0,
	}
	store := newFakeStore()
	store.meta = &Meta{ModuleAddress: testModule, BlockNumber: 100, BlockHash: common.HexToHash("0xAA"), Timestamp: 1700, KeysOpIndex: 7}
	r := newReconcilerUnderTest(chain, store)

	meta, err := r.Update(context.Background(), BlockRefNumber(90))
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Equal(t, uint64(100), store.meta.BlockNumber, "stored meta must not regress")
}

// Fresh operator: adding a new operator with N keys causes N inserts and no deletes.
func TestReconcilerFreshOperator(t *testing.T) {
	chain := &fakeChainReader{
		resolved:       ResolvedBlock{Number: 100, Hash: common.HexToHash("0xAA"), Timestamp: 1700},
		keysOpIndex:    1,
		operatorsCount: 1,
		operators:      []*contract.NodeOperator{{Active: true, TotalSigningKeys: 2, UsedSigningKeys: 0}},
		keysByOperator: map[uint32][]*contract.SigningKey{
			0: {newTestKey(0, false, 1), newTestKey(1, false, 2)},
		},
	}
	store := newFakeStore()
	r := newReconcilerUnderTest(chain, store)

	_, err := r.Update(context.Background(), BlockRefNumber(100))
	require.NoError(t, err)

	keys, _ := store.FindKeysByOperator(context.Background(), testModule, 0)
	assert.Len(t, keys, 2)
}

// Validator-mirror variant refetches only the used prefix.
func TestReconcilerValidatorMirrorVariant(t *testing.T) {
	chain := &fakeChainReader{
		resolved:       ResolvedBlock{Number: 100, Hash: common.HexToHash("0xAA"), Timestamp: 1700},
		keysOpIndex:    1,
		operatorsCount: 1,
		operators:      []*contract.NodeOperator{{Active: true, TotalSigningKeys: 4, UsedSigningKeys: 2}},
		keysByOperator: map[uint32][]*contract.SigningKey{
			0: {newTestKey(0, true, 1), newTestKey(1, true, 2), newTestKey(2, false, 3), newTestKey(3, false, 4)},
		},
	}
	store := newFakeStore()
	r := NewReconciler(ReconcilerConfig{
		ModuleAddress:     testModule,
		Variant:           config.VariantValidators,
		OperatorBatchSize: 100,
		KeyBatchSize:      100,
	}, chain, store, nil)

	_, err := r.Update(context.Background(), BlockRefNumber(100))
	require.NoError(t, err)

	keys, _ := store.FindKeysByOperator(context.Background(), testModule, 0)
	assert.Len(t, keys, 2, "validator-mirror variant only refetches used keys")
}
