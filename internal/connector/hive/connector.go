package hive

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/partcat/partcat/internal/connector"
	"github.com/partcat/partcat/internal/errors"
	"github.com/partcat/partcat/internal/logging"
	"github.com/partcat/partcat/pkg/types"
)

// paramsBatch bounds the partitions per PARTITION_PARAMS query.
const paramsBatch = 500

// Options configures a metastore connection.
type Options struct {
	Catalog         string
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          logrus.FieldLogger
}

// Connector serves the read operations of the partition contract from a
// Hive metastore database. Saves and deletes stay unsupported.
type Connector struct {
	connector.Unimplemented

	db      *sql.DB
	dialect Dialect
	catalog string
	log     *logrus.Entry
}

var _ connector.PartitionService = (*Connector)(nil)

// Open connects to the metastore and verifies the connection.
func Open(ctx context.Context, opts Options) (*Connector, error) {
	dialect, err := DialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}
	if err := dialect.ValidateDSN(opts.DSN); err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Name, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("hive: failed to open %s connection: %w", dialect.Name, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("hive: failed to ping metastore: %w", err)
	}

	return New(db, dialect, opts.Catalog, opts.Logger), nil
}

// New wraps an open metastore database.
func New(db *sql.DB, dialect Dialect, catalog string, logger logrus.FieldLogger) *Connector {
	return &Connector{
		db:      db,
		dialect: dialect,
		catalog: catalog,
		log:     logging.Component(logger, "hive").WithField("catalog", catalog),
	}
}

// Close closes the connection pool.
func (c *Connector) Close() error {
	return c.db.Close()
}

// Pools exposes the connection pool statistics.
func (c *Connector) Pools() map[string]func() sql.DBStats {
	return map[string]func() sql.DBStats{c.catalog: c.db.Stats}
}

// Capabilities declares the read operations.
func (c *Connector) Capabilities() connector.CapabilitySet {
	return connector.Capabilities(
		connector.CapGetPartitions,
		connector.CapPartitionCount,
		connector.CapPartitionNames,
		connector.CapPartitionKeys,
		connector.CapPartitionURIs,
	)
}

// GetPartitions returns the matching partitions of table.
func (c *Connector) GetPartitions(ctx context.Context, table types.QualifiedName, req *types.GetPartitionsRequest, sort *types.Sort, page *types.Pageable) (*types.Page[types.PartitionDto], error) {
	pr, err := connector.PrepareRequest(table, req, sort, page)
	if err != nil {
		return nil, err
	}
	return c.selectPage(ctx, pr)
}

// GetPartitionKeys returns the names of the matching partitions.
func (c *Connector) GetPartitionKeys(ctx context.Context, table types.QualifiedName, req *types.GetPartitionsRequest, sort *types.Sort, page *types.Pageable) (*types.Page[string], error) {
	pr, err := connector.PrepareRequest(table, req, sort, page)
	if err != nil {
		return nil, err
	}
	pr.IncludeMetadata = false
	parts, err := c.selectPage(ctx, pr)
	if err != nil {
		return nil, err
	}
	return connector.MapPage(parts, connector.PartitionName), nil
}

// GetPartitionURIs returns the locations of the matching partitions.
func (c *Connector) GetPartitionURIs(ctx context.Context, table types.QualifiedName, req *types.GetPartitionsRequest, sort *types.Sort, page *types.Pageable) (*types.Page[string], error) {
	pr, err := connector.PrepareRequest(table, req, sort, page)
	if err != nil {
		return nil, err
	}
	pr.IncludeMetadata = false
	pr.ExcludeLocation = false
	parts, err := c.selectPage(ctx, pr)
	if err != nil {
		return nil, err
	}
	return connector.MapPage(parts, connector.PartitionURI), nil
}

// selectPage materialises every partition of the table, then filters,
// sorts and pages in process. Parameters are fetched for the page only.
func (c *Connector) selectPage(ctx context.Context, pr *connector.Request) (*types.Page[types.PartitionDto], error) {
	tblID, err := c.tableID(ctx, pr.Table)
	if err != nil {
		return nil, err
	}
	all, ids, err := c.listPartitions(ctx, pr.Table, tblID)
	if err != nil {
		return nil, err
	}

	selected := connector.Select(pr, all)
	connector.SortPartitions(selected, pr.Sort)
	page := connector.Paginate(pr, selected)

	if pr.IncludeMetadata && len(page.Items) > 0 {
		if err := c.loadParams(ctx, page.Items, ids); err != nil {
			return nil, err
		}
	}
	for i := range page.Items {
		page.Items[i] = connector.Project(pr, page.Items[i])
	}

	stats := pr.EvalStats()
	c.log.WithFields(logrus.Fields{
		"table":               pr.Table.String(),
		"scanned":             len(all),
		"selected":            len(selected),
		"missing_keys":        stats.MissingKeys,
		"coercion_mismatches": stats.CoercionMismatches,
	}).Debug("filtered partitions")
	return page, nil
}

func (c *Connector) tableID(ctx context.Context, table types.QualifiedName) (int64, error) {
	var id int64
	err := c.db.QueryRowContext(ctx, c.dialect.Rebind(tableIDQuery), table.DatabaseName, table.TableName).Scan(&id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, errors.NewConnectorError(errors.CodeTableNotFound,
			fmt.Sprintf("table %s does not exist", table), nil)
	}
	if err != nil {
		return 0, backendError("failed to look up table", err)
	}
	return id, nil
}

// listPartitions returns every partition of a table and their metastore ids
// by partition name.
func (c *Connector) listPartitions(ctx context.Context, table types.QualifiedName, tblID int64) ([]types.PartitionDto, map[string]int64, error) {
	rows, err := c.db.QueryContext(ctx, c.dialect.Rebind(partitionsQuery), tblID)
	if err != nil {
		return nil, nil, backendError("failed to list partitions", err)
	}
	defer rows.Close()

	var parts []types.PartitionDto
	ids := make(map[string]int64)
	for rows.Next() {
		var (
			id         int64
			name       string
			createTime int64
			location   string
		)
		if err := rows.Scan(&id, &name, &createTime, &location); err != nil {
			return nil, nil, backendError("failed to scan partition", err)
		}
		p := types.PartitionDto{
			Name:      types.NewPartitionName(table, name),
			Location:  location,
			CreatedAt: time.Unix(createTime, 0),
		}
		if kv, err := types.ParsePartitionName(name); err == nil {
			p.Keys = kv
		}
		parts = append(parts, p)
		ids[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, nil, backendError("error iterating partitions", err)
	}
	return parts, ids, nil
}

// loadParams fills the metadata of parts from PARTITION_PARAMS.
func (c *Connector) loadParams(ctx context.Context, parts []types.PartitionDto, ids map[string]int64) error {
	byID := make(map[int64]*types.PartitionDto, len(parts))
	for i := range parts {
		byID[ids[parts[i].Name.PartitionName]] = &parts[i]
	}

	for start := 0; start < len(parts); start += paramsBatch {
		end := min(start+paramsBatch, len(parts))
		args := make([]interface{}, 0, end-start)
		for _, p := range parts[start:end] {
			args = append(args, ids[p.Name.PartitionName])
		}
		query := partitionParamsQuery + strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ") + ")"

		if err := c.scanParams(ctx, c.dialect.Rebind(query), args, byID); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connector) scanParams(ctx context.Context, query string, args []interface{}, byID map[int64]*types.PartitionDto) error {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return backendError("failed to load partition parameters", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			key   string
			value sql.NullString
		)
		if err := rows.Scan(&id, &key, &value); err != nil {
			return backendError("failed to scan partition parameter", err)
		}
		p, ok := byID[id]
		if !ok {
			continue
		}
		if p.Metadata == nil {
			p.Metadata = make(map[string]string)
		}
		p.Metadata[key] = value.String
	}
	if err := rows.Err(); err != nil {
		return backendError("error iterating partition parameters", err)
	}
	return nil
}

// GetPartitionCount returns the number of partitions of table.
func (c *Connector) GetPartitionCount(ctx context.Context, table types.QualifiedName) (int, error) {
	if err := connector.ValidateTable(table); err != nil {
		return 0, err
	}
	tblID, err := c.tableID(ctx, table)
	if err != nil {
		return 0, err
	}
	var count int
	if err := c.db.QueryRowContext(ctx, c.dialect.Rebind(partitionCountQuery), tblID).Scan(&count); err != nil {
		return 0, backendError("failed to count partitions", err)
	}
	return count, nil
}

// GetPartitionNames maps locations back to partitions. Prefix lookups use
// LIKE and are re-checked in process, since metastore collations may
// ignore case.
func (c *Connector) GetPartitionNames(ctx context.Context, uris []string, prefixSearch bool) (map[string][]types.QualifiedName, error) {
	query := c.dialect.Rebind(namesByLocationQuery)
	if prefixSearch {
		query = c.dialect.Rebind(namesByLocationPrefixQuery)
	}

	out := make(map[string][]types.QualifiedName)
	for _, uri := range uris {
		if uri == "" {
			continue
		}
		if _, seen := out[uri]; seen {
			continue
		}
		arg := uri
		if prefixSearch {
			arg = likePrefix(uri)
		}
		names, err := c.lookupLocation(ctx, query, arg, uri, prefixSearch)
		if err != nil {
			return nil, err
		}
		if len(names) > 0 {
			out[uri] = names
		}
	}
	return out, nil
}

func (c *Connector) lookupLocation(ctx context.Context, query, arg, uri string, prefix bool) ([]types.QualifiedName, error) {
	rows, err := c.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, backendError("failed to look up locations", err)
	}
	defer rows.Close()

	var names []types.QualifiedName
	for rows.Next() {
		var database, table, name, location string
		if err := rows.Scan(&database, &table, &name, &location); err != nil {
			return nil, backendError("failed to scan partition name", err)
		}
		if !connector.MatchURI(location, uri, prefix) {
			continue
		}
		names = append(names, types.NewPartitionName(types.NewTableName(c.catalog, database, table), name))
	}
	if err := rows.Err(); err != nil {
		return nil, backendError("error iterating partition names", err)
	}
	return names, nil
}

// backendError wraps a metastore failure. Cancellation and deadline errors
// pass through so the dispatcher can report them as timeouts.
func backendError(msg string, err error) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.NewConnectorError(errors.CodeBackendFailure, "hive: "+msg, err)
}
