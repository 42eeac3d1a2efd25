// Package contract holds a hand-written abigen-style binding for the
// staking-module registry contract's read-only surface (§6). Only the four
// methods the reconciliation engine calls are bound; the contract exposes a
// much larger ABI that this engine never touches.
package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const registryABIJSON = `[
	{"constant":true,"inputs":[],"name":"getKeysOpIndex","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"getNodeOperatorsCount","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_id","type":"uint256"},{"name":"_fullInfo","type":"bool"}],"name":"getNodeOperator","outputs":[
		{"name":"active","type":"bool"},
		{"name":"name","type":"string"},
		{"name":"rewardAddress","type":"address"},
		{"name":"stakingLimit","type":"uint64"},
		{"name":"stoppedValidators","type":"uint64"},
		{"name":"totalSigningKeys","type":"uint64"},
		{"name":"usedSigningKeys","type":"uint64"}
	],"type":"function"},
	{"constant":true,"inputs":[{"name":"_operator_id","type":"uint256"},{"name":"_index","type":"uint256"}],"name":"getSigningKey","outputs":[
		{"name":"key","type":"bytes"},
		{"name":"depositSignature","type":"bytes"},
		{"name":"used","type":"bool"}
	],"type":"function"}
]`

// Registry is a read-only binding to the staking-module registry contract.
type Registry struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

// NewRegistry builds a Registry binding for the contract at address, using
// backend for all reads. backend is typically an *ethclient.Client, which
// satisfies bind.ContractCaller.
func NewRegistry(address common.Address, backend bind.ContractCaller) (*Registry, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse registry ABI: %w", err)
	}

	return &Registry{
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, nil, nil),
	}, nil
}

// Address returns the bound contract address.
func (r *Registry) Address() common.Address {
	return r.address
}

// NodeOperator mirrors the tuple returned by getNodeOperator(index, true).
type NodeOperator struct {
	Active            bool
	Name              string
	RewardAddress     common.Address
	StakingLimit      uint64
	StoppedValidators uint64
	TotalSigningKeys  uint64
	UsedSigningKeys   uint64
}

// SigningKey mirrors the tuple returned by getSigningKey.
type SigningKey struct {
	Key              []byte
	DepositSignature []byte
	Used             bool
}

func (r *Registry) call(ctx context.Context, blockHash common.Hash, out *[]interface{}, method string, args ...interface{}) error {
	opts := &bind.CallOpts{Context: ctx, BlockHash: blockHash}
	return r.contract.Call(opts, out, method, args...)
}

// GetKeysOpIndex reads the keysOpIndex counter pinned at blockHash.
func (r *Registry) GetKeysOpIndex(ctx context.Context, blockHash common.Hash) (uint64, error) {
	out := make([]interface{}, 1)
	if err := r.call(ctx, blockHash, &out, "getKeysOpIndex"); err != nil {
		return 0, err
	}
	return (*abi.ConvertType(out[0], new(big.Int)).(*big.Int)).Uint64(), nil
}

// GetNodeOperatorsCount reads the operator count pinned at blockHash.
func (r *Registry) GetNodeOperatorsCount(ctx context.Context, blockHash common.Hash) (uint64, error) {
	out := make([]interface{}, 1)
	if err := r.call(ctx, blockHash, &out, "getNodeOperatorsCount"); err != nil {
		return 0, err
	}
	return (*abi.ConvertType(out[0], new(big.Int)).(*big.Int)).Uint64(), nil
}

// GetNodeOperator reads one operator record by index, pinned at blockHash.
func (r *Registry) GetNodeOperator(ctx context.Context, blockHash common.Hash, index uint32) (*NodeOperator, error) {
	out := make([]interface{}, 7)
	if err := r.call(ctx, blockHash, &out, "getNodeOperator", new(big.Int).SetUint64(uint64(index)), true); err != nil {
		return nil, err
	}

	return &NodeOperator{
		Active:            *abi.ConvertType(out[0], new(bool)).(*bool),
		Name:              *abi.ConvertType(out[1], new(string)).(*string),
		RewardAddress:     *abi.ConvertType(out[2], new(common.Address)).(*common.Address),
		StakingLimit:      *abi.ConvertType(out[3], new(uint64)).(*uint64),
		StoppedValidators: *abi.ConvertType(out[4], new(uint64)).(*uint64),
		TotalSigningKeys:  *abi.ConvertType(out[5], new(uint64)).(*uint64),
		UsedSigningKeys:   *abi.ConvertType(out[6], new(uint64)).(*uint64),
	}, nil
}

// GetSigningKey reads one signing key by (operatorIndex, keyIndex), pinned at blockHash.
func (r *Registry) GetSigningKey(ctx context.Context, blockHash common.Hash, operatorIndex, keyIndex uint32) (*SigningKey, error) {
	out := make([]interface{}, 3)
	args := []interface{}{new(big.Int).SetUint64(uint64(operatorIndex)), new(big.Int).SetUint64(uint64(keyIndex))}
	if err := r.call(ctx, blockHash, &out, "getSigningKey", args...); err != nil {
		return nil, err
	}

	return &SigningKey{
		Key:              *abi.ConvertType(out[0], new([]byte)).(*[]byte),
		DepositSignature: *abi.ConvertType(out[1], new([]byte)).(*[]byte),
		Used:             *abi.ConvertType(out[2], new(bool)).(*bool),
	}, nil
}

// eth_call request/response shapes for batched reads. Mirrors the shape the
// node expects for the "to"/"data" call object and the blockHash pin.
type callArg struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

// BatchGetNodeOperators reads multiple operators in one JSON-RPC batch
// request, pinned at blockHash (§4.3). Order of the result matches indices.
func (r *Registry) BatchGetNodeOperators(ctx context.Context, rpcClient *rpc.Client, blockHash common.Hash, indices []uint32) ([]*NodeOperator, error) {
	if len(indices) == 0 {
		return nil, nil
	}

	raw := make([]hexutil.Bytes, len(indices))
	batch := make([]rpc.BatchElem, len(indices))
	for i, idx := range indices {
		data, err := r.abi.Pack("getNodeOperator", new(big.Int).SetUint64(uint64(idx)), true)
		if err != nil {
			return nil, fmt.Errorf("pack getNodeOperator(%d): %w", idx, err)
		}
		batch[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []interface{}{callArg{To: r.address, Data: data}, rpc.BlockNumberOrHashWithHash(blockHash, false)},
			Result: &raw[i],
		}
	}

	if err := rpcClient.BatchCallContext(ctx, batch); err != nil {
		return nil, fmt.Errorf("batch getNodeOperator: %w", err)
	}

	operators := make([]*NodeOperator, len(indices))
	for i, elem := range batch {
		if elem.Error != nil {
			return nil, fmt.Errorf("getNodeOperator(%d): %w", indices[i], elem.Error)
		}
		out, err := r.abi.Unpack("getNodeOperator", raw[i])
		if err != nil {
			return nil, fmt.Errorf("unpack getNodeOperator(%d): %w", indices[i], err)
		}
		operators[i] = &NodeOperator{
			Active:            *abi.ConvertType(out[0], new(bool)).(*bool),
			Name:              *abi.ConvertType(out[1], new(string)).(*string),
			RewardAddress:     *abi.ConvertType(out[2], new(common.Address)).(*common.Address),
			StakingLimit:      *abi.ConvertType(out[3], new(uint64)).(*uint64),
			StoppedValidators: *abi.ConvertType(out[4], new(uint64)).(*uint64),
			TotalSigningKeys:  *abi.ConvertType(out[5], new(uint64)).(*uint64),
			UsedSigningKeys:   *abi.ConvertType(out[6], new(uint64)).(*uint64),
		}
	}
	return operators, nil
}

// BatchGetSigningKeys reads multiple signing keys for one operator in one
// JSON-RPC batch request, pinned at blockHash (§4.4). Order of the result
// matches indices.
func (r *Registry) BatchGetSigningKeys(ctx context.Context, rpcClient *rpc.Client, blockHash common.Hash, operatorIndex uint32, indices []uint32) ([]*SigningKey, error) {
	if len(indices) == 0 {
		return nil, nil
	}

	raw := make([]hexutil.Bytes, len(indices))
	batch := make([]rpc.BatchElem, len(indices))
	for i, idx := range indices {
		data, err := r.abi.Pack("getSigningKey", new(big.Int).SetUint64(uint64(operatorIndex)), new(big.Int).SetUint64(uint64(idx)))
		if err != nil {
			return nil, fmt.Errorf("pack getSigningKey(%d,%d): %w", operatorIndex, idx, err)
		}
		batch[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []interface{}{callArg{To: r.address, Data: data}, rpc.BlockNumberOrHashWithHash(blockHash, false)},
			Result: &raw[i],
		}
	}

	if err := rpcClient.BatchCallContext(ctx, batch); err != nil {
		return nil, fmt.Errorf("batch getSigningKey: %w", err)
	}

	keys := make([]*SigningKey, len(indices))
	for i, elem := range batch {
		if elem.Error != nil {
			return nil, fmt.Errorf("getSigningKey(%d,%d): %w", operatorIndex, indices[i], elem.Error)
		}
		out, err := r.abi.Unpack("getSigningKey", raw[i])
		if err != nil {
			return nil, fmt.Errorf("unpack getSigningKey(%d,%d): %w", operatorIndex, indices[i], err)
		}
		keys[i] = &SigningKey{
			Key:              *abi.ConvertType(out[0], new([]byte)).(*[]byte),
			DepositSignature: *abi.ConvertType(out[1], new([]byte)).(*[]byte),
			Used:             *abi.ConvertType(out[2], new(bool)).(*bool),
		}
	}
	return keys, nil
}
