package registry

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// fetchMeta is the Meta Fetcher (B): resolves ref through the Chain Reader
// and reads the keysOpIndex scalar pinned at the resolved block hash (§4.2).
func fetchMeta(ctx context.Context, chainReader ChainReader, moduleAddress common.Address, ref BlockRef) (*Meta, error) {
	resolved, err := chainReader.ResolveBlock(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetch meta: %w", err)
	}

	keysOpIndex, err := chainReader.FetchKeysOpIndex(ctx, resolved.Hash)
	if err != nil {
		return nil, fmt.Errorf("fetch meta: %w", err)
	}

	return &Meta{
		ModuleAddress: moduleAddress,
		BlockNumber:   resolved.Number,
		BlockHash:     resolved.Hash,
		Timestamp:     resolved.Timestamp,
		KeysOpIndex:   keysOpIndex,
	}, nil
}
