package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// KeyDelete is a per-operator key-range delete: rows with
// index >= FromIndex are removed (§4.5, handles contract-side key removal).
type KeyDelete struct {
	OperatorIndex uint32
	FromIndex     uint32
}

// Batch is the unit of transactional persistence the Reconciler hands to
// the Store (§4.5, §4.7). A zero-value field is simply omitted from the
// transaction: a Batch carrying only KeyUpserts touches no Meta or
// Operator rows.
type Batch struct {
	Meta       *Meta
	Operators  []*Operator
	KeyDeletes []KeyDelete
	KeyUpserts []*Key
}

// Store is the transactional persistence layer (E) for Meta, Operator, and
// Key rows, pinned to one module address per call.
type Store interface {
	// GetMeta returns the Meta row for moduleAddress, or nil if none exists.
	GetMeta(ctx context.Context, moduleAddress common.Address) (*Meta, error)

	// FindAllOperators returns all operators for moduleAddress, ascending
	// by index.
	FindAllOperators(ctx context.Context, moduleAddress common.Address) ([]*Operator, error)

	// FindAllKeys returns all keys for moduleAddress.
	FindAllKeys(ctx context.Context, moduleAddress common.Address) ([]*Key, error)

	// FindUsedKeys returns only keys with Used == true for moduleAddress.
	FindUsedKeys(ctx context.Context, moduleAddress common.Address) ([]*Key, error)

	// FindKeysByOperator returns all keys for one operator.
	FindKeysByOperator(ctx context.Context, moduleAddress common.Address, operatorIndex uint32) ([]*Key, error)

	// Apply commits batch transactionally: either every write in it
	// becomes visible, or none does (§4.5 atomicity contract).
	Apply(ctx context.Context, moduleAddress common.Address, batch Batch) error
}
