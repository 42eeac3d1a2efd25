// Package registry implements the registry reconciliation engine: the
// component that mirrors a staking-module registry contract into a local
// relational store and keeps that mirror consistent with the chain head.
package registry

import "github.com/ethereum/go-ethereum/common"

// Meta is the (block, keysOpIndex) snapshot pinning a store state to a chain
// state. One row per module (§3).
type Meta struct {
	ModuleAddress common.Address
	BlockNumber   uint64
	BlockHash     common.Hash
	Timestamp     uint64
	KeysOpIndex   uint64
}

// Operator is a node operator registered in the on-chain registry,
// identified by (moduleAddress, index) (§3).
type Operator struct {
	ModuleAddress     common.Address
	Index             uint32
	Active            bool
	Name              string
	RewardAddress     common.Address
	StakingLimit      uint64
	StoppedValidators uint64
	// TotalSigningKeys is an upper bound on owned keys.
	TotalSigningKeys uint64
	// UsedSigningKeys counts keys the contract considers used. Indices
	// [0, UsedSigningKeys) are immutable across updates.
	UsedSigningKeys uint64
}

// Key is a signing key identified by (moduleAddress, operatorIndex, index)
// (§3).
type Key struct {
	ModuleAddress    common.Address
	OperatorIndex    uint32
	Index            uint32
	Pubkey           [48]byte
	DepositSignature [96]byte
	Used             bool
}

// BlockRef names the block an update cycle should pin to: a number, a hash,
// or a symbolic tag ("finalized", "latest").
type BlockRef struct {
	tag    string
	number *uint64
	hash   *common.Hash
}

// BlockRefTag builds a symbolic block reference, e.g. "finalized" or "latest".
func BlockRefTag(tag string) BlockRef {
	return BlockRef{tag: tag}
}

// BlockRefNumber builds a block reference pinned to a block number.
func BlockRefNumber(n uint64) BlockRef {
	return BlockRef{number: &n}
}

// BlockRefHash builds a block reference pinned to a block hash.
func BlockRefHash(h common.Hash) BlockRef {
	return BlockRef{hash: &h}
}

// Tag returns the symbolic tag of the reference, if any.
func (r BlockRef) Tag() string {
	return r.tag
}

// Number returns the pinned block number, or nil if the reference is a hash
// or a tag.
func (r BlockRef) Number() *uint64 {
	return r.number
}

// Hash returns the pinned block hash, or nil if the reference is a number
// or a tag.
func (r BlockRef) Hash() *common.Hash {
	return r.hash
}

// ResolvedBlock is the canonical {number, hash, timestamp} triple a
// BlockRef resolves to (§4.1).
type ResolvedBlock struct {
	Number    uint64
	Hash      common.Hash
	Timestamp uint64
}
