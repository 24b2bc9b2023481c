package sqlite

import (
	"database/sql"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/partcat/partcat/internal/filter/eval"
	"github.com/partcat/partcat/internal/filter/parser"
)

// DriverName is the database/sql driver with the filter functions
// registered on every connection.
const DriverName = "sqlite3_partcat"

var registerOnce sync.Once

// RegisterDriver registers DriverName. It is safe to call more than once.
func RegisterDriver() {
	registerOnce.Do(func() {
		sql.Register(DriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterFunc("partcat_cmp", sqlCompare, true); err != nil {
					return err
				}
				if err := conn.RegisterFunc("partcat_in", sqlIn, true); err != nil {
					return err
				}
				if err := conn.RegisterFunc("partcat_like", sqlLike, true); err != nil {
					return err
				}
				return conn.RegisterFunc("partcat_truthy", sqlTruthy, true)
			},
		})
	})
}

// Every function receives the key value as a possibly NULL argument; NULL
// means the partition does not have the key and yields 0, as the evaluator
// does.

func keyValue(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return "", false
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// sqlCompare implements partcat_cmp(op, value, kind, literal).
func sqlCompare(op string, value interface{}, kind int64, text string) int64 {
	v, ok := keyValue(value)
	lit := &parser.Literal{Kind: parser.LiteralKind(kind), Text: text}
	return boolInt(eval.CompareValue(parser.CompareOp(op), v, ok, lit))
}

// sqlIn implements partcat_in(value, kind1, literal1, kind2, literal2, ...).
func sqlIn(value interface{}, pairs ...interface{}) int64 {
	v, ok := keyValue(value)
	if !ok {
		return 0
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		kind, _ := pairs[i].(int64)
		text, _ := keyValue(pairs[i+1])
		lit := &parser.Literal{Kind: parser.LiteralKind(kind), Text: text}
		if eval.CompareValue(parser.OpEq, v, true, lit) {
			return 1
		}
	}
	return 0
}

// sqlLike implements partcat_like(value, pattern).
func sqlLike(value interface{}, pattern string) int64 {
	v, ok := keyValue(value)
	return boolInt(ok && eval.LikeMatch(v, pattern))
}

// sqlTruthy implements partcat_truthy(value).
func sqlTruthy(value interface{}) int64 {
	v, ok := keyValue(value)
	return boolInt(ok && eval.Truthy(v))
}
