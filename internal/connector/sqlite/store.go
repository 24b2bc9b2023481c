package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/golang/snappy"
	"github.com/sirupsen/logrus"

	"github.com/partcat/partcat/internal/connector"
	"github.com/partcat/partcat/internal/errors"
	"github.com/partcat/partcat/internal/logging"
	"github.com/partcat/partcat/pkg/types"
)

// maxCachedStmts bounds the prepared statement cache. Filter shapes vary
// per request; beyond the bound statements are prepared per call.
const maxCachedStmts = 256

// Options configures a Store.
type Options struct {
	// Catalog is the catalog name the store serves.
	Catalog string
	// Path is the database file.
	Path string
	// ReadPoolSize is the number of read-only connections.
	ReadPoolSize int
	// Logger receives store logs; nil discards them.
	Logger logrus.FieldLogger
}

// Store implements connector.PartitionService on SQLite.
type Store struct {
	db      *sql.DB // Write connection (single writer)
	readDB  *sql.DB // Read connection pool (concurrent readers)
	path    string
	catalog string
	mu      sync.Mutex // Write-only lock (reads don't need this)
	log     *logrus.Entry

	stmtCache map[string]*sql.Stmt
	stmtMu    sync.RWMutex
}

var _ connector.PartitionService = (*Store)(nil)

// Open opens or creates the store at opts.Path.
func Open(opts Options) (*Store, error) {
	RegisterDriver()
	if opts.ReadPoolSize <= 0 {
		opts.ReadPoolSize = 4
	}

	// Write connection: single writer with WAL mode
	db, err := sql.Open(DriverName, "file:"+opts.Path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{
		db:        db,
		path:      opts.Path,
		catalog:   opts.Catalog,
		log:       logging.Component(opts.Logger, "sqlite").WithField("catalog", opts.Catalog),
		stmtCache: make(map[string]*sql.Stmt),
	}

	// Schema first: the read-only pool cannot create the file.
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to initialize schema: %w", err)
	}

	readDB, err := sql.Open(DriverName, "file:"+opts.Path+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(opts.ReadPoolSize)
	readDB.SetMaxIdleConns(opts.ReadPoolSize)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	s.readDB = readDB

	return s, nil
}

func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the cached statements and both pools.
func (s *Store) Close() error {
	s.stmtMu.Lock()
	for _, stmt := range s.stmtCache {
		stmt.Close()
	}
	s.stmtCache = nil
	s.stmtMu.Unlock()

	// Close read connection first, then write connection
	if err := s.readDB.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

// Pools exposes the connection pool statistics of the store.
func (s *Store) Pools() map[string]func() sql.DBStats {
	return map[string]func() sql.DBStats{
		s.catalog + "_write": s.db.Stats,
		s.catalog + "_read":  s.readDB.Stats,
	}
}

// Capabilities returns every capability.
func (s *Store) Capabilities() connector.CapabilitySet {
	return connector.CapAll
}

// GetPartitions returns the matching partitions of table.
func (s *Store) GetPartitions(ctx context.Context, table types.QualifiedName, req *types.GetPartitionsRequest, sort *types.Sort, page *types.Pageable) (*types.Page[types.PartitionDto], error) {
	pr, err := connector.PrepareRequest(table, req, sort, page)
	if err != nil {
		return nil, err
	}
	return s.selectPage(ctx, pr)
}

// GetPartitionKeys returns the names of the matching partitions.
func (s *Store) GetPartitionKeys(ctx context.Context, table types.QualifiedName, req *types.GetPartitionsRequest, sort *types.Sort, page *types.Pageable) (*types.Page[string], error) {
	pr, err := connector.PrepareRequest(table, req, sort, page)
	if err != nil {
		return nil, err
	}
	pr.IncludeMetadata = false
	parts, err := s.selectPage(ctx, pr)
	if err != nil {
		return nil, err
	}
	return connector.MapPage(parts, connector.PartitionName), nil
}

// GetPartitionURIs returns the locations of the matching partitions.
func (s *Store) GetPartitionURIs(ctx context.Context, table types.QualifiedName, req *types.GetPartitionsRequest, sort *types.Sort, page *types.Pageable) (*types.Page[string], error) {
	pr, err := connector.PrepareRequest(table, req, sort, page)
	if err != nil {
		return nil, err
	}
	pr.IncludeMetadata = false
	pr.ExcludeLocation = false
	parts, err := s.selectPage(ctx, pr)
	if err != nil {
		return nil, err
	}
	return connector.MapPage(parts, connector.PartitionURI), nil
}

// sortColumns are the sort fields that run in SQL. Key sorts run in Go.
var sortColumns = map[string]string{
	types.SortFieldName:      "p.name",
	types.SortFieldURI:       "p.location",
	types.SortFieldCreatedAt: "p.created_at",
}

// selectPage runs the request against the read pool. The filter and name
// restriction always run in SQL; sorts on name, uri and createdAt also run
// in SQL with limit+1 rows fetched to detect a following page.
func (s *Store) selectPage(ctx context.Context, pr *connector.Request) (*types.Page[types.PartitionDto], error) {
	query, args := buildSelect(pr)

	column, sqlSort := sortColumns[pr.Sort.SortField()]
	var page *types.Page[types.PartitionDto]
	if sqlSort {
		dir := "ASC"
		if pr.Sort.Descending() {
			dir = "DESC"
		}
		query += " ORDER BY " + column + " " + dir
		if column != "p.name" {
			query += ", p.name " + dir
		}
		switch {
		case pr.Limit > 0:
			// One extra row detects a following page.
			fetch := pr.Limit
			if fetch < math.MaxInt {
				fetch++
			}
			query += " LIMIT ? OFFSET ?"
			args = append(args, fetch, pr.Offset)
		case pr.Offset > 0:
			query += " LIMIT -1 OFFSET ?"
			args = append(args, pr.Offset)
		}

		parts, err := s.queryPartitions(ctx, pr.Table.CatalogName, query, args)
		if err != nil {
			return nil, err
		}
		more := pr.Limit > 0 && len(parts) > pr.Limit
		if more {
			parts = parts[:pr.Limit]
		}
		page = connector.NextPage(pr, parts, more)
	} else {
		parts, err := s.queryPartitions(ctx, pr.Table.CatalogName, query, args)
		if err != nil {
			return nil, err
		}
		connector.SortPartitions(parts, pr.Sort)
		page = connector.Paginate(pr, parts)
	}

	for i := range page.Items {
		page.Items[i] = connector.Project(pr, page.Items[i])
	}
	return page, nil
}

// buildSelect renders the filtered SELECT for pr without ORDER BY.
func buildSelect(pr *connector.Request) (string, []interface{}) {
	metadata := "NULL"
	if pr.IncludeMetadata {
		metadata = "p.metadata"
	}

	var sb strings.Builder
	sb.WriteString("SELECT p.database_name, p.table_name, p.name, p.location, ")
	sb.WriteString(metadata)
	sb.WriteString(", p.created_at, p.updated_at FROM partitions p WHERE p.database_name = ? AND p.table_name = ?")
	args := []interface{}{pr.Table.DatabaseName, pr.Table.TableName}

	if len(pr.Names) > 0 {
		clauses := make([]string, 0, len(pr.Names))
		for _, name := range pr.Names {
			if pr.PartialKeyMatch {
				prefix := name + "/"
				clauses = append(clauses, "p.name = ? OR substr(p.name, 1, ?) = ?")
				args = append(args, name, utf8.RuneCountInString(prefix), prefix)
				continue
			}
			clauses = append(clauses, "p.name = ?")
			args = append(args, name)
		}
		sb.WriteString(" AND (")
		sb.WriteString(strings.Join(clauses, " OR "))
		sb.WriteString(")")
	}

	where, filterArgs := Translate(pr.Expr)
	if where != "1" {
		sb.WriteString(" AND ")
		sb.WriteString(where)
		args = append(args, filterArgs...)
	}
	return sb.String(), args
}

func (s *Store) queryPartitions(ctx context.Context, catalog, query string, args []interface{}) ([]types.PartitionDto, error) {
	rows, err := s.queryRead(ctx, query, args)
	if err != nil {
		return nil, backendError("failed to query partitions", err)
	}
	defer rows.Close()

	var parts []types.PartitionDto
	for rows.Next() {
		p, err := scanPartition(rows, catalog)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, backendError("error iterating partitions", err)
	}
	return parts, nil
}

// queryRead runs query on the read pool through the statement cache.
func (s *Store) queryRead(ctx context.Context, query string, args []interface{}) (*sql.Rows, error) {
	stmt, err := s.getOrPrepareStmt(ctx, query)
	if err != nil {
		return nil, err
	}
	if stmt == nil {
		return s.readDB.QueryContext(ctx, query, args...)
	}
	return stmt.QueryContext(ctx, args...)
}

// getOrPrepareStmt returns a cached prepared statement or creates one. It
// returns nil when the cache is full.
func (s *Store) getOrPrepareStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	s.stmtMu.RLock()
	if stmt, ok := s.stmtCache[query]; ok {
		s.stmtMu.RUnlock()
		return stmt, nil
	}
	s.stmtMu.RUnlock()

	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()

	// Double-check after acquiring write lock
	if stmt, ok := s.stmtCache[query]; ok {
		return stmt, nil
	}
	if s.stmtCache == nil || len(s.stmtCache) >= maxCachedStmts {
		return nil, nil
	}

	stmt, err := s.readDB.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	s.stmtCache[query] = stmt
	return stmt, nil
}

func scanPartition(rows *sql.Rows, catalog string) (types.PartitionDto, error) {
	var (
		database, table, name, location string
		metadata                        []byte
		createdAt, updatedAt            int64
	)
	if err := rows.Scan(&database, &table, &name, &location, &metadata, &createdAt, &updatedAt); err != nil {
		return types.PartitionDto{}, backendError("failed to scan partition", err)
	}

	p := types.PartitionDto{
		Name:      types.NewPartitionName(types.NewTableName(catalog, database, table), name),
		Location:  location,
		CreatedAt: time.Unix(0, createdAt),
		UpdatedAt: time.Unix(0, updatedAt),
	}
	if kv, err := types.ParsePartitionName(name); err == nil {
		p.Keys = kv
	}
	if len(metadata) > 0 {
		md, err := decodeMetadata(metadata)
		if err != nil {
			return types.PartitionDto{}, backendError(fmt.Sprintf("corrupt metadata for partition %s", name), err)
		}
		p.Metadata = md
	}
	return p, nil
}

func encodeMetadata(md map[string]string) ([]byte, error) {
	if len(md) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func decodeMetadata(blob []byte) (map[string]string, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, err
	}
	var md map[string]string
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, err
	}
	return md, nil
}

// GetPartitionCount returns the number of partitions of table.
func (s *Store) GetPartitionCount(ctx context.Context, table types.QualifiedName) (int, error) {
	if err := connector.ValidateTable(table); err != nil {
		return 0, err
	}
	var count int
	err := s.readDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM partitions WHERE database_name = ? AND table_name = ?",
		table.DatabaseName, table.TableName,
	).Scan(&count)
	if err != nil {
		return 0, backendError("failed to count partitions", err)
	}
	return count, nil
}

// GetPartitionNames maps locations back to partitions. Only URIs with at
// least one partition appear in the result.
func (s *Store) GetPartitionNames(ctx context.Context, uris []string, prefixSearch bool) (map[string][]types.QualifiedName, error) {
	query := "SELECT database_name, table_name, name FROM partitions WHERE location = ? ORDER BY database_name, table_name, name"
	if prefixSearch {
		query = "SELECT database_name, table_name, name FROM partitions WHERE location != '' AND substr(location, 1, length(?1)) = ?1 ORDER BY database_name, table_name, name"
	}

	out := make(map[string][]types.QualifiedName)
	for _, uri := range uris {
		if uri == "" {
			continue
		}
		if _, seen := out[uri]; seen {
			continue
		}
		names, err := s.lookupLocation(ctx, query, uri)
		if err != nil {
			return nil, err
		}
		if len(names) > 0 {
			out[uri] = names
		}
	}
	return out, nil
}

func (s *Store) lookupLocation(ctx context.Context, query, uri string) ([]types.QualifiedName, error) {
	rows, err := s.queryRead(ctx, query, []interface{}{uri})
	if err != nil {
		return nil, backendError("failed to look up locations", err)
	}
	defer rows.Close()

	var names []types.QualifiedName
	for rows.Next() {
		var database, table, name string
		if err := rows.Scan(&database, &table, &name); err != nil {
			return nil, backendError("failed to scan partition name", err)
		}
		names = append(names, types.NewPartitionName(types.NewTableName(s.catalog, database, table), name))
	}
	if err := rows.Err(); err != nil {
		return nil, backendError("error iterating partition names", err)
	}
	return names, nil
}

// backendError wraps a database failure. Cancellation and deadline errors
// pass through so the dispatcher can report them as timeouts.
func backendError(msg string, err error) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.NewConnectorError(errors.CodeBackendFailure, "sqlite: "+msg, err)
}
