// Package chain implements the Chain Reader (A): block reference
// resolution and pinned-hash contract reads, adapted from the teacher's
// client wrapper to the registry engine's needs.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lido-go/registry-reconciler/internal/contract"
	"github.com/lido-go/registry-reconciler/internal/registry"
)

// Config holds Chain Reader configuration.
type Config struct {
	Endpoint       string
	Timeout        time.Duration
	ModuleAddress  common.Address
	RateLimitPerS  float64
	RateLimitBurst int
	Logger         *zap.Logger
}

// Reader resolves block references and performs read-only contract calls
// pinned to a block hash (§4.1).
type Reader struct {
	ethClient *ethclient.Client
	rpcClient *rpc.Client
	registry  *contract.Registry
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewReader dials the RPC endpoint and binds the registry contract at
// cfg.ModuleAddress.
func NewReader(cfg Config) (*Reader, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("chain reader: endpoint cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("chain reader: dial %s: %w", cfg.Endpoint, registry.ErrChainUnavailable)
	}
	ethClient := ethclient.NewClient(rpcClient)

	if _, err := ethClient.ChainID(ctx); err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("chain reader: ping %s: %w", cfg.Endpoint, registry.ErrChainUnavailable)
	}

	reg, err := contract.NewRegistry(cfg.ModuleAddress, ethClient)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("chain reader: bind registry: %w", err)
	}

	limit := cfg.RateLimitPerS
	if limit <= 0 {
		limit = 50
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 100
	}

	logger.Info("chain reader connected",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("module_address", cfg.ModuleAddress.Hex()),
	)

	return &Reader{
		ethClient: ethClient,
		rpcClient: rpcClient,
		registry:  reg,
		limiter:   rate.NewLimiter(rate.Limit(limit), burst),
		logger:    logger,
	}, nil
}

// Close releases the underlying RPC connection.
func (r *Reader) Close() {
	r.ethClient.Close()
}

// ResolveBlock resolves ref to a canonical {number, hash, timestamp} (§4.1).
func (r *Reader) ResolveBlock(ctx context.Context, ref registry.BlockRef) (registry.ResolvedBlock, error) {
	header, err := r.headerFor(ctx, ref)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return registry.ResolvedBlock{}, fmt.Errorf("resolve block: %w", registry.ErrUnknownBlock)
		}
		return registry.ResolvedBlock{}, fmt.Errorf("resolve block: %w: %v", registry.ErrChainUnavailable, err)
	}
	if header == nil {
		return registry.ResolvedBlock{}, fmt.Errorf("resolve block: %w", registry.ErrUnknownBlock)
	}

	return registry.ResolvedBlock{
		Number:    header.Number.Uint64(),
		Hash:      header.Hash(),
		Timestamp: header.Time,
	}, nil
}

func (r *Reader) headerFor(ctx context.Context, ref registry.BlockRef) (*types.Header, error) {
	if h := ref.Hash(); h != nil {
		return r.ethClient.HeaderByHash(ctx, *h)
	}
	if n := ref.Number(); n != nil {
		return r.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(*n))
	}

	switch ref.Tag() {
	case "", "latest":
		return r.ethClient.HeaderByNumber(ctx, big.NewInt(rpc.LatestBlockNumber.Int64()))
	case "finalized":
		return r.ethClient.HeaderByNumber(ctx, big.NewInt(rpc.FinalizedBlockNumber.Int64()))
	default:
		return nil, fmt.Errorf("unsupported block tag %q", ref.Tag())
	}
}

// FetchKeysOpIndex reads the keysOpIndex scalar pinned at blockHash (§4.2).
func (r *Reader) FetchKeysOpIndex(ctx context.Context, blockHash common.Hash) (uint64, error) {
	v, err := r.registry.GetKeysOpIndex(ctx, blockHash)
	if err != nil {
		return 0, fmt.Errorf("fetch keysOpIndex: %w: %v", registry.ErrChainUnavailable, err)
	}
	return v, nil
}

// FetchOperatorsCount reads the operator count pinned at blockHash (§4.3).
func (r *Reader) FetchOperatorsCount(ctx context.Context, blockHash common.Hash) (uint64, error) {
	v, err := r.registry.GetNodeOperatorsCount(ctx, blockHash)
	if err != nil {
		return 0, fmt.Errorf("fetch operator count: %w: %v", registry.ErrChainUnavailable, err)
	}
	return v, nil
}

// FetchOperators reads operators at indices [0, count) pinned at blockHash,
// in RPC batches bounded by batchSize (§4.3). The result is ordered by
// ascending index.
func (r *Reader) FetchOperators(ctx context.Context, blockHash common.Hash, count uint64, batchSize int) ([]*contract.NodeOperator, error) {
	if count == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	operators := make([]*contract.NodeOperator, 0, count)
	for start := uint64(0); start < count; start += uint64(batchSize) {
		end := start + uint64(batchSize)
		if end > count {
			end = count
		}

		indices := make([]uint32, 0, end-start)
		for i := start; i < end; i++ {
			indices = append(indices, uint32(i))
		}

		if err := r.limiter.WaitN(ctx, 1); err != nil {
			return nil, fmt.Errorf("fetch operators: %w: %v", registry.ErrChainUnavailable, err)
		}

		chunk, err := r.registry.BatchGetNodeOperators(ctx, r.rpcClient, blockHash, indices)
		if err != nil {
			return nil, fmt.Errorf("fetch operators[%d:%d]: %w: %v", start, end, registry.ErrChainUnavailable, err)
		}
		operators = append(operators, chunk...)
	}

	return operators, nil
}

// FetchSigningKeys reads the half-open range [from, to) of signing keys for
// operatorIndex, pinned at blockHash, chunked into RPC batches bounded by
// batchSize (§4.4). If to <= from, returns empty.
func (r *Reader) FetchSigningKeys(ctx context.Context, blockHash common.Hash, operatorIndex uint32, from, to uint32, batchSize int) ([]*contract.SigningKey, error) {
	if to <= from {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	keys := make([]*contract.SigningKey, 0, to-from)
	for start := from; start < to; start += uint32(batchSize) {
		end := start + uint32(batchSize)
		if end > to {
			end = to
		}

		indices := make([]uint32, 0, end-start)
		for i := start; i < end; i++ {
			indices = append(indices, i)
		}

		if err := r.limiter.WaitN(ctx, 1); err != nil {
			return nil, fmt.Errorf("fetch signing keys: %w: %v", registry.ErrChainUnavailable, err)
		}

		chunk, err := r.registry.BatchGetSigningKeys(ctx, r.rpcClient, blockHash, operatorIndex, indices)
		if err != nil {
			return nil, fmt.Errorf("fetch signing keys[%d:%d] for operator %d: %w: %v", start, end, operatorIndex, registry.ErrChainUnavailable, err)
		}
		keys = append(keys, chunk...)
	}

	return keys, nil
}
