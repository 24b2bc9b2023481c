// Package hive reads partitions straight from a Hive metastore database.
// The connector is read-only: filters are evaluated in process over the
// partitions of a table.
package hive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect adapts the canonical metastore queries to one database. Queries
// are written with double-quoted identifiers and '?' placeholders.
type Dialect struct {
	// Name is the database/sql driver name.
	Name string
	// quote replaces the canonical '"' identifier quote.
	quote byte
	// numbered placeholders ($1, $2, ...) instead of '?'
	numbered bool
}

var (
	MySQL    = Dialect{Name: "mysql", quote: '`'}
	Postgres = Dialect{Name: "postgres", quote: '"', numbered: true}
	SQLite   = Dialect{Name: "sqlite3", quote: '"'}
)

// DialectFor returns the dialect of a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql":
		return MySQL, nil
	case "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("hive: unsupported metastore driver %q", driver)
	}
}

// ValidateDSN checks a DSN for the dialect before any connection is made.
func (d Dialect) ValidateDSN(dsn string) error {
	if dsn == "" {
		return fmt.Errorf("hive: DSN cannot be empty")
	}
	if d.Name == MySQL.Name {
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return fmt.Errorf("hive: invalid mysql DSN: %w", err)
		}
	}
	return nil
}

// Rebind rewrites a canonical query for the dialect.
func (d Dialect) Rebind(query string) string {
	if d.quote == '"' && !d.numbered {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	inString := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inString = !inString
			sb.WriteByte(c)
		case inString:
			sb.WriteByte(c)
		case c == '"':
			sb.WriteByte(d.quote)
		case c == '?' && d.numbered:
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// likeEscape is the escape character of prefix LIKE patterns.
const likeEscape = '!'

// likePrefix returns a LIKE pattern matching every string starting with
// prefix.
func likePrefix(prefix string) string {
	var sb strings.Builder
	for _, r := range prefix {
		if r == '%' || r == '_' || r == likeEscape {
			sb.WriteRune(likeEscape)
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('%')
	return sb.String()
}
