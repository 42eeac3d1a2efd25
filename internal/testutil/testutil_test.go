package testutil

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

var testModule = common.HexToAddress("0x00000000000000000000000000000000000002")

func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger(t)
	assert.NotNil(t, logger)
}

func TestNewTestMeta(t *testing.T) {
	meta := NewTestMeta(testModule, 100, 7)
	assert.Equal(t, testModule, meta.ModuleAddress)
	assert.Equal(t, uint64(100), meta.BlockNumber)
	assert.Equal(t, uint64(7), meta.KeysOpIndex)
}

func TestNewTestOperator(t *testing.T) {
	op := NewTestOperator(testModule, 3, 10, 4)
	assert.Equal(t, uint32(3), op.Index)
	assert.Equal(t, uint64(10), op.TotalSigningKeys)
	assert.Equal(t, uint64(4), op.UsedSigningKeys)
	assert.True(t, op.Active)
}

func TestNewTestKey(t *testing.T) {
	key := NewTestKey(testModule, 1, 5, true)
	assert.Equal(t, uint32(1), key.OperatorIndex)
	assert.Equal(t, uint32(5), key.Index)
	assert.True(t, key.Used)

	other := NewTestKey(testModule, 1, 6, false)
	assert.NotEqual(t, key.Pubkey, other.Pubkey)
}
