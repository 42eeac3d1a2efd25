package registry

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// fetchKeys is the Key Fetcher (D): reads the half-open range [from, to) of
// signing keys for operatorIndex at blockHash, chunked into bounded RPC
// batches (§4.4). Returned records carry their operatorIndex and absolute
// index. If to <= from, returns empty.
func fetchKeys(ctx context.Context, chainReader ChainReader, moduleAddress common.Address, operatorIndex uint32, from, to uint32, blockHash common.Hash, batchSize int) ([]*Key, error) {
	if to <= from {
		return nil, nil
	}

	raw, err := chainReader.FetchSigningKeys(ctx, blockHash, operatorIndex, from, to, batchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch keys: %w", err)
	}

	keys := make([]*Key, len(raw))
	for i, k := range raw {
		key := &Key{
			ModuleAddress: moduleAddress,
			OperatorIndex: operatorIndex,
			Index:         from + uint32(i),
			Used:          k.Used,
		}
		copy(key.Pubkey[:], k.Key)
		copy(key.DepositSignature[:], k.DepositSignature)
		keys[i] = key
	}
	return keys, nil
}
