package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lido-go/registry-reconciler/internal/contract"
)

// ChainReader is the subset of the Chain Reader (A) the reconciler depends
// on. *chain.Reader satisfies this interface; tests substitute a fake.
type ChainReader interface {
	ResolveBlock(ctx context.Context, ref BlockRef) (ResolvedBlock, error)
	FetchKeysOpIndex(ctx context.Context, blockHash common.Hash) (uint64, error)
	FetchOperatorsCount(ctx context.Context, blockHash common.Hash) (uint64, error)
	FetchOperators(ctx context.Context, blockHash common.Hash, count uint64, batchSize int) ([]*contract.NodeOperator, error)
	FetchSigningKeys(ctx context.Context, blockHash common.Hash, operatorIndex uint32, from, to uint32, batchSize int) ([]*contract.SigningKey, error)
}
