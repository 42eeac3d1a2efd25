package store

import (
	"database/sql"

	migrate "github.com/rubenv/sql-migrate"
)

// migrations defines the persisted state layout of §6: three tables named
// registry_meta, registry_operator, registry_key, upserts targeting the
// composite primary keys of §3 explicitly.
var migrations = migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_initial",
			Up: []string{
				`CREATE TABLE registry_meta (
					module_address    TEXT PRIMARY KEY,
					block_number      INTEGER NOT NULL,
					block_hash        TEXT NOT NULL,
					block_timestamp   INTEGER NOT NULL,
					keys_op_index     INTEGER NOT NULL
				)`,
				`CREATE TABLE registry_operator (
					module_address      TEXT NOT NULL,
					operator_index      INTEGER NOT NULL,
					active              INTEGER NOT NULL,
					name                TEXT NOT NULL,
					reward_address      TEXT NOT NULL,
					staking_limit       INTEGER NOT NULL,
					stopped_validators  INTEGER NOT NULL,
					total_signing_keys  INTEGER NOT NULL,
					used_signing_keys   INTEGER NOT NULL,
					PRIMARY KEY (module_address, operator_index)
				)`,
				`CREATE TABLE registry_key (
					module_address      TEXT NOT NULL,
					operator_index      INTEGER NOT NULL,
					key_index           INTEGER NOT NULL,
					pubkey              TEXT NOT NULL,
					deposit_signature   TEXT NOT NULL,
					used                INTEGER NOT NULL,
					PRIMARY KEY (module_address, operator_index, key_index)
				)`,
				`CREATE INDEX registry_key_used_idx ON registry_key (module_address, used)`,
				`CREATE INDEX registry_key_pubkey_idx ON registry_key (pubkey)`,
			},
			Down: []string{
				`DROP TABLE registry_key`,
				`DROP TABLE registry_operator`,
				`DROP TABLE registry_meta`,
			},
		},
	},
}

// Migrate applies every pending migration to db.
func Migrate(db *sql.DB) (int, error) {
	return migrate.Exec(db, "sqlite3", migrations, migrate.Up)
}
