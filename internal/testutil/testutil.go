// Package testutil holds fixtures shared by the reconciliation engine's test
// suites.
package testutil

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/lido-go/registry-reconciler/internal/registry"
)

// NewTestLogger creates a test logger that doesn't output to console.
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zap.NewNop()
}

// NewTestMeta builds a Meta fixture for moduleAddress at blockNumber.
func NewTestMeta(moduleAddress common.Address, blockNumber uint64, keysOpIndex uint64) *registry.Meta {
	return &registry.Meta{
		ModuleAddress: moduleAddress,
		BlockNumber:   blockNumber,
		BlockHash:     common.BigToHash(new(big.Int).SetUint64(blockNumber)),
		Timestamp:     blockNumber * 12,
		KeysOpIndex:   keysOpIndex,
	}
}

// NewTestOperator builds an Operator fixture with the given signing-key
// counters; the remaining fields take deterministic placeholder values.
func NewTestOperator(moduleAddress common.Address, index uint32, totalSigningKeys, usedSigningKeys uint64) *registry.Operator {
	return &registry.Operator{
		ModuleAddress:     moduleAddress,
		Index:             index,
		Active:            true,
		Name:              "test-operator",
		RewardAddress:     common.BigToAddress(new(big.Int).SetUint64(uint64(index) + 1)),
		StakingLimit:      totalSigningKeys,
		StoppedValidators: 0,
		TotalSigningKeys:  totalSigningKeys,
		UsedSigningKeys:   usedSigningKeys,
	}
}

// NewTestKey builds a Key fixture for (moduleAddress, operatorIndex, index),
// with deterministic, distinguishable pubkey/signature bytes.
func NewTestKey(moduleAddress common.Address, operatorIndex, index uint32, used bool) *registry.Key {
	key := &registry.Key{
		ModuleAddress: moduleAddress,
		OperatorIndex: operatorIndex,
		Index:         index,
		Used:          used,
	}
	key.Pubkey[0] = byte(operatorIndex)
	key.Pubkey[1] = byte(index)
	key.DepositSignature[0] = byte(operatorIndex)
	key.DepositSignature[1] = byte(index)
	return key
}
