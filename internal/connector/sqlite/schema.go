// Package sqlite is the native catalog store: partitions kept in a SQLite
// database with filters, sorts and limits pushed down into SQL.
package sqlite

// CreatePartitionsTableSQL creates the partitions table. Names are unique
// per table; metadata is snappy-compressed JSON.
const CreatePartitionsTableSQL = `
CREATE TABLE IF NOT EXISTS partitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    database_name TEXT NOT NULL,
    table_name TEXT NOT NULL,
    name TEXT NOT NULL,
    location TEXT NOT NULL DEFAULT '',
    metadata BLOB,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE (database_name, table_name, name)
)`

// CreatePartitionKeyValuesTableSQL creates the key/value table the filter
// functions read from.
const CreatePartitionKeyValuesTableSQL = `
CREATE TABLE IF NOT EXISTS partition_key_values (
    partition_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (partition_id, key),
    FOREIGN KEY (partition_id) REFERENCES partitions(id) ON DELETE CASCADE
)`

// CreateIndexesSQL creates the lookup indexes.
var CreateIndexesSQL = []string{
	// Reverse lookup by storage location
	`CREATE INDEX IF NOT EXISTS idx_partitions_location ON partitions(location)`,

	// Key/value lookups across partitions
	`CREATE INDEX IF NOT EXISTS idx_partition_key_values_key ON partition_key_values(key, value)`,

	// Creation-time sorts within a table
	`CREATE INDEX IF NOT EXISTS idx_partitions_created ON partitions(database_name, table_name, created_at)`,
}

// AllSchemaSQL returns all SQL statements needed to initialize the store.
func AllSchemaSQL() []string {
	statements := []string{
		CreatePartitionsTableSQL,
		CreatePartitionKeyValuesTableSQL,
	}
	return append(statements, CreateIndexesSQL...)
}
