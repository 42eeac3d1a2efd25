// Package store implements the Store (E): the transactional SQL persistence
// layer for Meta, Operator, and Key rows.
package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	"github.com/russross/meddler"
	"go.uber.org/zap"

	"github.com/lido-go/registry-reconciler/internal/constants"
	"github.com/lido-go/registry-reconciler/internal/registry"
)

// Config configures the SQL-backed Store.
type Config struct {
	// DSN is the sqlite3 data source name, e.g. "file:registry.db?cache=shared".
	DSN string
	// ChunkSize bounds how many rows a single multi-row upsert statement
	// carries, to stay under the driver's bound-parameter limit (§4.5).
	ChunkSize int
	Logger    *zap.Logger
}

// Store is the SQL-backed implementation of registry.Store.
type Store struct {
	db        *sql.DB
	chunkSize int
	logger    *zap.Logger
}

var _ registry.Store = (*Store)(nil)

// Open opens the sqlite3 database at cfg.DSN and applies pending migrations.
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store: dsn must not be empty")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = constants.DefaultUpsertChunkSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if applied, err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	} else if applied > 0 {
		logger.Info("applied schema migrations", zap.Int("count", applied))
	}

	return &Store{db: db, chunkSize: cfg.ChunkSize, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type metaRow struct {
	ModuleAddress string `meddler:"module_address"`
	BlockNumber   uint64 `meddler:"block_number"`
	BlockHash     string `meddler:"block_hash"`
	Timestamp     uint64 `meddler:"block_timestamp"`
	KeysOpIndex   uint64 `meddler:"keys_op_index"`
}

func (r *metaRow) toMeta() *registry.Meta {
	return &registry.Meta{
		ModuleAddress: common.HexToAddress(r.ModuleAddress),
		BlockNumber:   r.BlockNumber,
		BlockHash:     common.HexToHash(r.BlockHash),
		Timestamp:     r.Timestamp,
		KeysOpIndex:   r.KeysOpIndex,
	}
}

type operatorRow struct {
	ModuleAddress     string `meddler:"module_address"`
	Index             uint32 `meddler:"operator_index"`
	Active            bool   `meddler:"active"`
	Name              string `meddler:"name"`
	RewardAddress     string `meddler:"reward_address"`
	StakingLimit      uint64 `meddler:"staking_limit"`
	StoppedValidators uint64 `meddler:"stopped_validators"`
	TotalSigningKeys  uint64 `meddler:"total_signing_keys"`
	UsedSigningKeys   uint64 `meddler:"used_signing_keys"`
}

func (r *operatorRow) toOperator() *registry.Operator {
	return &registry.Operator{
		ModuleAddress:     common.HexToAddress(r.ModuleAddress),
		Index:             r.Index,
		Active:            r.Active,
		Name:              r.Name,
		RewardAddress:     common.HexToAddress(r.RewardAddress),
		StakingLimit:      r.StakingLimit,
		StoppedValidators: r.StoppedValidators,
		TotalSigningKeys:  r.TotalSigningKeys,
		UsedSigningKeys:   r.UsedSigningKeys,
	}
}

type keyRow struct {
	ModuleAddress    string `meddler:"module_address"`
	OperatorIndex    uint32 `meddler:"operator_index"`
	Index            uint32 `meddler:"key_index"`
	Pubkey           string `meddler:"pubkey"`
	DepositSignature string `meddler:"deposit_signature"`
	Used             bool   `meddler:"used"`
}

func (r *keyRow) toKey() *registry.Key {
	key := &registry.Key{
		ModuleAddress: common.HexToAddress(r.ModuleAddress),
		OperatorIndex: r.OperatorIndex,
		Index:         r.Index,
		Used:          r.Used,
	}
	pub, _ := hex.DecodeString(r.Pubkey)
	sig, _ := hex.DecodeString(r.DepositSignature)
	copy(key.Pubkey[:], pub)
	copy(key.DepositSignature[:], sig)
	return key
}

// GetMeta returns the Meta row for moduleAddress, or nil if none exists.
func (s *Store) GetMeta(ctx context.Context, moduleAddress common.Address) (*registry.Meta, error) {
	var row metaRow
	err := meddler.QueryRow(s.db, &row, "SELECT * FROM registry_meta WHERE module_address = ?", moduleAddress.Hex())
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get meta: %w", err)
	}
	return row.toMeta(), nil
}

// FindAllOperators returns all operators for moduleAddress, ascending by index.
func (s *Store) FindAllOperators(ctx context.Context, moduleAddress common.Address) ([]*registry.Operator, error) {
	var rows []*operatorRow
	err := meddler.QueryAll(s.db, &rows,
		"SELECT * FROM registry_operator WHERE module_address = ? ORDER BY operator_index ASC", moduleAddress.Hex())
	if err != nil {
		return nil, fmt.Errorf("store: find all operators: %w", err)
	}
	out := make([]*registry.Operator, len(rows))
	for i, r := range rows {
		out[i] = r.toOperator()
	}
	return out, nil
}

// FindAllKeys returns all keys for moduleAddress.
func (s *Store) FindAllKeys(ctx context.Context, moduleAddress common.Address) ([]*registry.Key, error) {
	var rows []*keyRow
	err := meddler.QueryAll(s.db, &rows,
		"SELECT * FROM registry_key WHERE module_address = ? ORDER BY operator_index ASC, key_index ASC", moduleAddress.Hex())
	if err != nil {
		return nil, fmt.Errorf("store: find all keys: %w", err)
	}
	out := make([]*registry.Key, len(rows))
	for i, r := range rows {
		out[i] = r.toKey()
	}
	return out, nil
}

// FindUsedKeys returns only keys with Used == true for moduleAddress.
func (s *Store) FindUsedKeys(ctx context.Context, moduleAddress common.Address) ([]*registry.Key, error) {
	var rows []*keyRow
	err := meddler.QueryAll(s.db, &rows,
		"SELECT * FROM registry_key WHERE module_address = ? AND used = 1 ORDER BY operator_index ASC, key_index ASC", moduleAddress.Hex())
	if err != nil {
		return nil, fmt.Errorf("store: find used keys: %w", err)
	}
	out := make([]*registry.Key, len(rows))
	for i, r := range rows {
		out[i] = r.toKey()
	}
	return out, nil
}

// FindKeysByOperator returns all keys for one operator.
func (s *Store) FindKeysByOperator(ctx context.Context, moduleAddress common.Address, operatorIndex uint32) ([]*registry.Key, error) {
	var rows []*keyRow
	err := meddler.QueryAll(s.db, &rows,
		"SELECT * FROM registry_key WHERE module_address = ? AND operator_index = ? ORDER BY key_index ASC",
		moduleAddress.Hex(), operatorIndex)
	if err != nil {
		return nil, fmt.Errorf("store: find keys by operator: %w", err)
	}
	out := make([]*registry.Key, len(rows))
	for i, r := range rows {
		out[i] = r.toKey()
	}
	return out, nil
}

// FindKeysByPubkeys returns every key matching one of pubkeys, across all
// modules (§6 findKeysByPubkeys).
func (s *Store) FindKeysByPubkeys(ctx context.Context, pubkeys [][48]byte) ([]*registry.Key, error) {
	if len(pubkeys) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(pubkeys))
	args := make([]interface{}, len(pubkeys))
	for i, pk := range pubkeys {
		placeholders[i] = "?"
		args[i] = hex.EncodeToString(pk[:])
	}
	query := fmt.Sprintf("SELECT * FROM registry_key WHERE pubkey IN (%s)", strings.Join(placeholders, ","))
	var rows []*keyRow
	if err := meddler.QueryAll(s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: find keys by pubkeys: %w", err)
	}
	out := make([]*registry.Key, len(rows))
	for i, r := range rows {
		out[i] = r.toKey()
	}
	return out, nil
}

// Apply commits batch transactionally (§4.5 atomicity contract).
func (s *Store) Apply(ctx context.Context, moduleAddress common.Address, batch registry.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.Error("rollback failed", zap.Error(rbErr))
		}
	}()

	if batch.Meta != nil {
		if err := applyMeta(tx, batch.Meta); err != nil {
			return err
		}
	}
	if len(batch.Operators) > 0 {
		if err := s.applyOperators(tx, moduleAddress, batch.Operators); err != nil {
			return err
		}
	}
	for _, d := range batch.KeyDeletes {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM registry_key WHERE module_address = ? AND operator_index = ? AND key_index >= ?",
			moduleAddress.Hex(), d.OperatorIndex, d.FromIndex); err != nil {
			return fmt.Errorf("store: delete key tail for operator %d: %w", d.OperatorIndex, err)
		}
	}
	if len(batch.KeyUpserts) > 0 {
		if err := s.applyKeys(tx, moduleAddress, batch.KeyUpserts); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func applyMeta(tx *sql.Tx, meta *registry.Meta) error {
	_, err := tx.Exec(
		`INSERT INTO registry_meta (module_address, block_number, block_hash, block_timestamp, keys_op_index)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(module_address) DO UPDATE SET
		   block_number = excluded.block_number,
		   block_hash = excluded.block_hash,
		   block_timestamp = excluded.block_timestamp,
		   keys_op_index = excluded.keys_op_index`,
		meta.ModuleAddress.Hex(), meta.BlockNumber, meta.BlockHash.Hex(), meta.Timestamp, meta.KeysOpIndex,
	)
	if err != nil {
		return fmt.Errorf("store: upsert meta: %w", err)
	}
	return nil
}

func (s *Store) applyOperators(tx *sql.Tx, moduleAddress common.Address, operators []*registry.Operator) error {
	for _, chunk := range chunkOperators(operators, s.chunkSize) {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO registry_operator
			(module_address, operator_index, active, name, reward_address, staking_limit, stopped_validators, total_signing_keys, used_signing_keys)
			VALUES `)
		args := make([]interface{}, 0, len(chunk)*9)
		for i, op := range chunk {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?,?,?,?,?,?,?,?,?)")
			args = append(args, moduleAddress.Hex(), op.Index, op.Active, op.Name, op.RewardAddress.Hex(),
				op.StakingLimit, op.StoppedValidators, op.TotalSigningKeys, op.UsedSigningKeys)
		}
		sb.WriteString(` ON CONFLICT(module_address, operator_index) DO UPDATE SET
			active = excluded.active,
			name = excluded.name,
			reward_address = excluded.reward_address,
			staking_limit = excluded.staking_limit,
			stopped_validators = excluded.stopped_validators,
			total_signing_keys = excluded.total_signing_keys,
			used_signing_keys = excluded.used_signing_keys`)

		if _, err := tx.Exec(sb.String(), args...); err != nil {
			return fmt.Errorf("store: upsert operators: %w", err)
		}
	}
	return nil
}

func (s *Store) applyKeys(tx *sql.Tx, moduleAddress common.Address, keys []*registry.Key) error {
	for _, chunk := range chunkKeys(keys, s.chunkSize) {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO registry_key
			(module_address, operator_index, key_index, pubkey, deposit_signature, used)
			VALUES `)
		args := make([]interface{}, 0, len(chunk)*6)
		for i, k := range chunk {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?,?,?,?,?,?)")
			args = append(args, moduleAddress.Hex(), k.OperatorIndex, k.Index,
				hex.EncodeToString(k.Pubkey[:]), hex.EncodeToString(k.DepositSignature[:]), k.Used)
		}
		sb.WriteString(` ON CONFLICT(module_address, operator_index, key_index) DO UPDATE SET
			pubkey = excluded.pubkey,
			deposit_signature = excluded.deposit_signature,
			used = excluded.used`)

		if _, err := tx.Exec(sb.String(), args...); err != nil {
			return fmt.Errorf("store: upsert keys: %w", err)
		}
	}
	return nil
}

func chunkOperators(operators []*registry.Operator, size int) [][]*registry.Operator {
	var chunks [][]*registry.Operator
	for size < len(operators) {
		operators, chunks = operators[size:], append(chunks, operators[0:size:size])
	}
	return append(chunks, operators)
}

func chunkKeys(keys []*registry.Key, size int) [][]*registry.Key {
	var chunks [][]*registry.Key
	for size < len(keys) {
		keys, chunks = keys[size:], append(chunks, keys[0:size:size])
	}
	return append(chunks, keys)
}
