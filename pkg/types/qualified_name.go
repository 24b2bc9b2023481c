// Package types holds the catalog-visible value types shared by the filter
// engine, the connector contract and the federation dispatcher.
package types

import (
	"errors"
	"strings"

	"github.com/spaolacci/murmur3"
)

// ErrInvalidQualifiedName is returned when a qualified name string cannot be parsed.
var ErrInvalidQualifiedName = errors.New("invalid qualified name")

// QualifiedName identifies a catalog object: catalog/database/table[/partition].
// It is a comparable value type and can be used directly as a map key.
type QualifiedName struct {
	CatalogName   string `json:"catalogName"`
	DatabaseName  string `json:"databaseName,omitempty"`
	TableName     string `json:"tableName,omitempty"`
	PartitionName string `json:"partitionName,omitempty"`
}

// NewTableName returns the qualified name of a table.
func NewTableName(catalog, database, table string) QualifiedName {
	return QualifiedName{CatalogName: catalog, DatabaseName: database, TableName: table}
}

// NewPartitionName returns the qualified name of a partition of a table.
func NewPartitionName(table QualifiedName, partition string) QualifiedName {
	table.PartitionName = partition
	return table
}

// ParseQualifiedName parses "catalog/database/table[/partition]".
// Everything after the third separator belongs to the partition name, since
// Hive partition names are themselves '/'-separated.
func ParseQualifiedName(s string) (QualifiedName, error) {
	parts := strings.SplitN(strings.Trim(s, "/"), "/", 4)
	for _, p := range parts {
		if p == "" {
			return QualifiedName{}, ErrInvalidQualifiedName
		}
	}
	qn := QualifiedName{CatalogName: parts[0]}
	if len(parts) > 1 {
		qn.DatabaseName = parts[1]
	}
	if len(parts) > 2 {
		qn.TableName = parts[2]
	}
	if len(parts) > 3 {
		qn.PartitionName = parts[3]
	}
	return qn, nil
}

// String renders the name in its '/'-separated form.
func (q QualifiedName) String() string {
	var sb strings.Builder
	sb.WriteString(q.CatalogName)
	for _, p := range []string{q.DatabaseName, q.TableName, q.PartitionName} {
		if p == "" {
			break
		}
		sb.WriteByte('/')
		sb.WriteString(p)
	}
	return sb.String()
}

// IsTable reports whether the name denotes a table.
func (q QualifiedName) IsTable() bool {
	return q.TableName != "" && q.PartitionName == ""
}

// IsPartition reports whether the name denotes a partition.
func (q QualifiedName) IsPartition() bool {
	return q.TableName != "" && q.PartitionName != ""
}

// Table returns the qualified name of the table owning this object.
func (q QualifiedName) Table() QualifiedName {
	q.PartitionName = ""
	return q
}

// Hash returns a value-based hash of the name. Equal names hash equally.
func (q QualifiedName) Hash() uint64 {
	h := murmur3.New64()
	for _, p := range []string{q.CatalogName, q.DatabaseName, q.TableName, q.PartitionName} {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
