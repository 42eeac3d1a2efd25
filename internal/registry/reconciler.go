package registry

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/lido-go/registry-reconciler/internal/config"
)

// ReconcilerConfig configures one Reconciler instance, one per tracked
// module (§3: entities are keyed by moduleAddress to permit multiple
// modules in one store).
type ReconcilerConfig struct {
	ModuleAddress     common.Address
	Variant           config.Variant
	OperatorBatchSize int
	KeyBatchSize      int
}

// Reconciler (G) is the orchestrator implementing the update algorithm of
// §4.7. It is the only stateful coordinator in the engine; no component
// below it talks to another peer.
type Reconciler struct {
	cfg    ReconcilerConfig
	chain  ChainReader
	store  Store
	logger *zap.Logger
}

// NewReconciler builds a Reconciler for one module.
func NewReconciler(cfg ReconcilerConfig, chainReader ChainReader, store Store, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{cfg: cfg, chain: chainReader, store: store, logger: logger}
}

// Update runs one reconciliation cycle against ref (§4.7). A stale snapshot
// (step 2) is not an error: it returns (nil, nil) and logs at warn.
func (r *Reconciler) Update(ctx context.Context, ref BlockRef) (*Meta, error) {
	prevMeta, err := r.store.GetMeta(ctx, r.cfg.ModuleAddress)
	if err != nil {
		return nil, fmt.Errorf("update: load prev meta: %w", err)
	}

	currMeta, err := fetchMeta(ctx, r.chain, r.cfg.ModuleAddress, ref)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	if prevMeta != nil && prevMeta.BlockNumber > currMeta.BlockNumber {
		r.logger.Warn("stale snapshot observed, skipping update",
			zap.String("module_address", r.cfg.ModuleAddress.Hex()),
			zap.Uint64("stored_block", prevMeta.BlockNumber),
			zap.Uint64("observed_block", currMeta.BlockNumber),
			zap.Error(ErrStaleSnapshot),
		)
		return nil, nil
	}

	if compareMeta(prevMeta, currMeta) {
		if err := r.store.Apply(ctx, r.cfg.ModuleAddress, Batch{Meta: currMeta}); err != nil {
			return nil, fmt.Errorf("update: replace meta: %w: %v", ErrStoreFailure, err)
		}
		return currMeta, nil
	}

	return r.slowPath(ctx, currMeta)
}

// slowPath is §4.7 step 4: fetch operators, commit operators+meta+tail
// deletes, then refetch each operator's key range.
func (r *Reconciler) slowPath(ctx context.Context, currMeta *Meta) (*Meta, error) {
	prevOperators, err := r.store.FindAllOperators(ctx, r.cfg.ModuleAddress)
	if err != nil {
		return nil, fmt.Errorf("update: load prev operators: %w: %v", ErrStoreFailure, err)
	}

	currOperators, err := fetchOperators(ctx, r.chain, r.cfg.ModuleAddress, currMeta.BlockHash, r.cfg.OperatorBatchSize)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	keyDeletes := make([]KeyDelete, len(currOperators))
	for i, op := range currOperators {
		keyDeletes[i] = KeyDelete{OperatorIndex: op.Index, FromIndex: uint32(op.TotalSigningKeys)}
	}

	if err := r.store.Apply(ctx, r.cfg.ModuleAddress, Batch{
		Meta:       currMeta,
		Operators:  currOperators,
		KeyDeletes: keyDeletes,
	}); err != nil {
		return nil, fmt.Errorf("update: commit operators/meta: %w: %v", ErrStoreFailure, err)
	}

	prevByIndex := indexOperators(prevOperators)

	for _, curr := range currOperators {
		prev := prevByIndex[curr.Index]

		to := getToIndex(curr, r.cfg.Variant)
		from := getFromIndex(prev, curr, to)

		fetched, err := fetchKeys(ctx, r.chain, r.cfg.ModuleAddress, curr.Index, from, to, currMeta.BlockHash, r.cfg.KeyBatchSize)
		if err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
		if len(fetched) == 0 {
			continue
		}

		if err := r.store.Apply(ctx, r.cfg.ModuleAddress, Batch{KeyUpserts: fetched}); err != nil {
			return nil, fmt.Errorf("update: apply keys for operator %d: %w: %v", curr.Index, ErrStoreFailure, err)
		}
	}

	return currMeta, nil
}
