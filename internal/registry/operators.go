package registry

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// fetchOperators is the Operator Fetcher (C): reads the full operator list
// at blockHash, ascending by index, dense (§4.3).
func fetchOperators(ctx context.Context, chainReader ChainReader, moduleAddress common.Address, blockHash common.Hash, batchSize int) ([]*Operator, error) {
	count, err := chainReader.FetchOperatorsCount(ctx, blockHash)
	if err != nil {
		return nil, fmt.Errorf("fetch operators: %w", err)
	}

	raw, err := chainReader.FetchOperators(ctx, blockHash, count, batchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch operators: %w", err)
	}

	operators := make([]*Operator, len(raw))
	for i, o := range raw {
		operators[i] = &Operator{
			ModuleAddress:     moduleAddress,
			Index:             uint32(i),
			Active:            o.Active,
			Name:              o.Name,
			RewardAddress:     o.RewardAddress,
			StakingLimit:      o.StakingLimit,
			StoppedValidators: o.StoppedValidators,
			TotalSigningKeys:  o.TotalSigningKeys,
			UsedSigningKeys:   o.UsedSigningKeys,
		}
	}
	return operators, nil
}

// indexOperators builds a lookup of operators by index, for diffing against
// a freshly fetched operator list.
func indexOperators(operators []*Operator) map[uint32]*Operator {
	byIndex := make(map[uint32]*Operator, len(operators))
	for _, o := range operators {
		byIndex[o.Index] = o
	}
	return byIndex
}
