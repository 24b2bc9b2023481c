// Package catalog federates partition requests across connectors. The
// dispatcher routes every call by catalog name, parses filters once before
// any connector sees them and never retries a failed call.
package catalog

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/partcat/partcat/internal/connector"
	"github.com/partcat/partcat/internal/errors"
	"github.com/partcat/partcat/internal/events"
	"github.com/partcat/partcat/internal/filter/parser"
	"github.com/partcat/partcat/internal/logging"
	"github.com/partcat/partcat/internal/observability"
	"github.com/partcat/partcat/pkg/types"
)

// Options configures a Dispatcher. Every field is optional.
type Options struct {
	// CallTimeout bounds each connector call; 0 disables it.
	CallTimeout time.Duration
	// NamesConcurrency bounds the connectors queried in parallel by
	// GetPartitionNames. Values below 1 mean 1.
	NamesConcurrency int

	Metrics     *observability.DispatchMetrics
	FilterStats *observability.FilterStats
	Notifier    *events.Notifier
	Logger      logrus.FieldLogger
}

// Dispatcher routes partition operations to the connector registered for
// the catalog named in each request.
type Dispatcher struct {
	mu         sync.RWMutex
	connectors map[string]connector.PartitionService

	opts Options
	log  *logrus.Entry
}

var _ connector.PartitionService = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher without connectors.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.NamesConcurrency < 1 {
		opts.NamesConcurrency = 1
	}
	return &Dispatcher{
		connectors: make(map[string]connector.PartitionService),
		opts:       opts,
		log:        logging.Component(opts.Logger, "dispatcher"),
	}
}

// Register serves catalog with svc. Each catalog can be registered once.
func (d *Dispatcher) Register(catalog string, svc connector.PartitionService) error {
	if catalog == "" {
		return fmt.Errorf("catalog name cannot be empty")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.connectors[catalog]; exists {
		return fmt.Errorf("catalog %s is already registered", catalog)
	}
	d.connectors[catalog] = svc
	d.log.WithFields(logrus.Fields{
		"catalog":      catalog,
		"capabilities": svc.Capabilities().String(),
	}).Info("registered catalog")
	return nil
}

// Catalogs returns the registered catalog names in order.
func (d *Dispatcher) Catalogs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.connectors))
	for name := range d.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connector returns the connector serving catalog.
func (d *Dispatcher) Connector(catalog string) (connector.PartitionService, error) {
	d.mu.RLock()
	svc, ok := d.connectors[catalog]
	d.mu.RUnlock()
	if !ok {
		return nil, errors.NewValidationError(errors.CodeCatalogNotFound,
			fmt.Sprintf("catalog %q is not registered", catalog))
	}
	return svc, nil
}

// Capabilities returns the union of the registered connectors' capabilities.
func (d *Dispatcher) Capabilities() connector.CapabilitySet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var caps connector.CapabilitySet
	for _, svc := range d.connectors {
		caps |= svc.Capabilities()
	}
	return caps
}

// route validates table and resolves its connector.
func (d *Dispatcher) route(table types.QualifiedName) (connector.PartitionService, error) {
	if err := connector.ValidateTable(table); err != nil {
		return nil, err
	}
	return d.Connector(table.CatalogName)
}

// parse returns a copy of req carrying the parsed filter. Syntax errors stop
// the request here.
func (d *Dispatcher) parse(req *types.GetPartitionsRequest) (*types.GetPartitionsRequest, error) {
	var out types.GetPartitionsRequest
	if req != nil {
		out = *req
	}
	if out.Expr == nil {
		expr, err := parser.Parse(out.Filter)
		if err != nil {
			return nil, errors.NewSyntaxError(out.Filter, err)
		}
		out.Expr = expr
	}
	if d.opts.FilterStats != nil {
		d.opts.FilterStats.RecordFilter(out.Expr)
	}
	return &out, nil
}

// call runs fn against one catalog with the call timeout, then records the
// outcome. fn returns the number of items it produced.
func (d *Dispatcher) call(ctx context.Context, catalog string, op connector.Capability, fn func(ctx context.Context) (int, error)) error {
	start := time.Now()
	callCtx := ctx
	if d.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.opts.CallTimeout)
		defer cancel()
	}

	n, err := fn(callCtx)
	if err != nil && ctx.Err() == nil && stderrors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = errors.NewConnectorError(errors.CodeTimeout,
			fmt.Sprintf("%s on catalog %s exceeded %s", op, catalog, d.opts.CallTimeout), err)
	}

	d.opts.Metrics.ObserveCall(catalog, op.String(), start, err)
	entry := logging.WithRequest(ctx, d.log).WithFields(logrus.Fields{
		"catalog":   catalog,
		"operation": op.String(),
		"duration":  time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Warn("connector call failed")
		return err
	}
	d.opts.Metrics.AddResults(catalog, op.String(), n)
	entry.WithField("results", n).Debug("connector call completed")
	return nil
}

// unsupported answers an operation the connector does not declare without
// calling it.
func (d *Dispatcher) unsupported(ctx context.Context, catalog string, op connector.Capability) error {
	err := connector.DefaultResult(op)
	d.opts.Metrics.ObserveCall(catalog, op.String(), time.Now(), err)
	if err != nil {
		logging.WithRequest(ctx, d.log).WithFields(logrus.Fields{
			"catalog":   catalog,
			"operation": op.String(),
		}).Debug("operation not supported by catalog")
	}
	return err
}

// GetPartitions returns the partitions of table matching req.
func (d *Dispatcher) GetPartitions(ctx context.Context, table types.QualifiedName, req *types.GetPartitionsRequest, sort *types.Sort, page *types.Pageable) (*types.Page[types.PartitionDto], error) {
	svc, err := d.route(table)
	if err != nil {
		return nil, err
	}
	req, err = d.parse(req)
	if err != nil {
		return nil, err
	}
	if !svc.Capabilities().Has(connector.CapGetPartitions) {
		return nil, d.unsupported(ctx, table.CatalogName, connector.CapGetPartitions)
	}

	var out *types.Page[types.PartitionDto]
	err = d.call(ctx, table.CatalogName, connector.CapGetPartitions, func(ctx context.Context) (int, error) {
		var err error
		out, err = svc.GetPartitions(ctx, table, req, sort, page)
		if err != nil {
			return 0, err
		}
		return len(out.Items), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetPartitionKeys returns the names of the partitions of table matching req.
func (d *Dispatcher) GetPartitionKeys(ctx context.Context, table types.QualifiedName, req *types.GetPartitionsRequest, sort *types.Sort, page *types.Pageable) (*types.Page[string], error) {
	return d.stringPage(ctx, connector.CapPartitionKeys, table, req, func(ctx context.Context, svc connector.PartitionService, req *types.GetPartitionsRequest) (*types.Page[string], error) {
		return svc.GetPartitionKeys(ctx, table, req, sort, page)
	})
}

// GetPartitionURIs returns the locations of the partitions of table matching req.
func (d *Dispatcher) GetPartitionURIs(ctx context.Context, table types.QualifiedName, req *types.GetPartitionsRequest, sort *types.Sort, page *types.Pageable) (*types.Page[string], error) {
	return d.stringPage(ctx, connector.CapPartitionURIs, table, req, func(ctx context.Context, svc connector.PartitionService, req *types.GetPartitionsRequest) (*types.Page[string], error) {
		return svc.GetPartitionURIs(ctx, table, req, sort, page)
	})
}

func (d *Dispatcher) stringPage(ctx context.Context, op connector.Capability, table types.QualifiedName, req *types.GetPartitionsRequest,
	fn func(context.Context, connector.PartitionService, *types.GetPartitionsRequest) (*types.Page[string], error)) (*types.Page[string], error) {
	svc, err := d.route(table)
	if err != nil {
		return nil, err
	}
	req, err = d.parse(req)
	if err != nil {
		return nil, err
	}
	if !svc.Capabilities().Has(op) {
		if err := d.unsupported(ctx, table.CatalogName, op); err != nil {
			return nil, err
		}
		return &types.Page[string]{Items: []string{}}, nil
	}

	var out *types.Page[string]
	err = d.call(ctx, table.CatalogName, op, func(ctx context.Context) (int, error) {
		var err error
		out, err = fn(ctx, svc, req)
		if err != nil {
			return 0, err
		}
		return len(out.Items), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetPartitionCount returns the number of partitions of table.
func (d *Dispatcher) GetPartitionCount(ctx context.Context, table types.QualifiedName) (int, error) {
	svc, err := d.route(table)
	if err != nil {
		return 0, err
	}
	if !svc.Capabilities().Has(connector.CapPartitionCount) {
		return 0, d.unsupported(ctx, table.CatalogName, connector.CapPartitionCount)
	}

	var count int
	err = d.call(ctx, table.CatalogName, connector.CapPartitionCount, func(ctx context.Context) (int, error) {
		var err error
		count, err = svc.GetPartitionCount(ctx, table)
		return 1, err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SavePartitions forwards a save to the catalog of table and publishes the
// changed partitions.
func (d *Dispatcher) SavePartitions(ctx context.Context, table types.QualifiedName, req *types.PartitionsSaveRequest) (*types.PartitionsSaveResponse, error) {
	svc, err := d.route(table)
	if err != nil {
		return nil, err
	}
	if !svc.Capabilities().Has(connector.CapSavePartitions) {
		return nil, d.unsupported(ctx, table.CatalogName, connector.CapSavePartitions)
	}

	var resp *types.PartitionsSaveResponse
	err = d.call(ctx, table.CatalogName, connector.CapSavePartitions, func(ctx context.Context) (int, error) {
		var err error
		resp, err = svc.SavePartitions(ctx, table, req)
		if err != nil {
			return 0, err
		}
		return len(resp.Added) + len(resp.Updated), nil
	})
	if err != nil {
		return nil, err
	}

	d.publish(events.PartitionsDeleted, table.Table(), resp.Dropped)
	d.publish(events.PartitionsSaved, table.Table(), append(append([]string{}, resp.Added...), resp.Updated...))
	return resp, nil
}

// DeletePartitions groups the names by catalog and deletes each group on
// its connector. Every group is attempted; failures of individual names,
// unknown catalogs and failed calls are merged into one BatchError.
func (d *Dispatcher) DeletePartitions(ctx context.Context, partitions []types.QualifiedName) error {
	batch := errors.NewBatchError(connector.CapDeletePartitions.String())

	var order []string
	groups := make(map[string][]types.QualifiedName)
	for _, name := range partitions {
		if _, ok := groups[name.CatalogName]; !ok {
			order = append(order, name.CatalogName)
		}
		groups[name.CatalogName] = append(groups[name.CatalogName], name)
	}

	for _, catalog := range order {
		names := groups[catalog]
		if err := d.deleteGroup(ctx, catalog, names); err != nil {
			if be, ok := errors.AsBatchError(err); ok {
				batch.Merge(be)
				d.publishDeleted(names, be)
				continue
			}
			for _, name := range names {
				batch.Add(name.String(), err)
			}
			continue
		}
		d.publishDeleted(names, nil)
	}
	return batch.ErrorOrNil()
}

func (d *Dispatcher) deleteGroup(ctx context.Context, catalog string, names []types.QualifiedName) error {
	svc, err := d.Connector(catalog)
	if err != nil {
		return err
	}
	if !svc.Capabilities().Has(connector.CapDeletePartitions) {
		return d.unsupported(ctx, catalog, connector.CapDeletePartitions)
	}
	return d.call(ctx, catalog, connector.CapDeletePartitions, func(ctx context.Context) (int, error) {
		err := svc.DeletePartitions(ctx, names)
		failed := 0
		if be, ok := errors.AsBatchError(err); ok {
			failed = be.Len()
		}
		return len(names) - failed, err
	})
}

// publishDeleted publishes the names of a group that were deleted, per table.
func (d *Dispatcher) publishDeleted(names []types.QualifiedName, failures *errors.BatchError) {
	if d.opts.Notifier == nil {
		return
	}
	failed := make(map[string]bool)
	if failures != nil {
		for _, name := range failures.Failed() {
			failed[name] = true
		}
	}
	var tables []types.QualifiedName
	byTable := make(map[types.QualifiedName][]string)
	for _, name := range names {
		if failed[name.String()] {
			continue
		}
		table := name.Table()
		if _, ok := byTable[table]; !ok {
			tables = append(tables, table)
		}
		byTable[table] = append(byTable[table], name.PartitionName)
	}
	for _, table := range tables {
		d.publish(events.PartitionsDeleted, table, byTable[table])
	}
}

func (d *Dispatcher) publish(typ events.Type, table types.QualifiedName, partitions []string) {
	if len(partitions) == 0 {
		return
	}
	d.opts.Notifier.Publish(events.Notification{
		Type:       typ,
		Table:      table,
		Partitions: partitions,
		Timestamp:  time.Now().UnixNano(),
	})
}

// GetPartitionNames asks every catalog that supports reverse lookups which
// partitions live at uris and merges the answers. Connectors are queried
// in parallel, at most NamesConcurrency at a time. The first failure
// cancels the remaining lookups and is returned.
func (d *Dispatcher) GetPartitionNames(ctx context.Context, uris []string, prefixSearch bool) (map[string][]types.QualifiedName, error) {
	out := make(map[string][]types.QualifiedName)
	if len(uris) == 0 {
		return out, nil
	}

	d.mu.RLock()
	targets := make(map[string]connector.PartitionService, len(d.connectors))
	for name, svc := range d.connectors {
		if svc.Capabilities().Has(connector.CapPartitionNames) {
			targets[name] = svc
		}
	}
	d.mu.RUnlock()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.NamesConcurrency)
	for catalog, svc := range targets {
		g.Go(func() error {
			return d.call(gctx, catalog, connector.CapPartitionNames, func(ctx context.Context) (int, error) {
				found, err := svc.GetPartitionNames(ctx, uris, prefixSearch)
				if err != nil {
					return 0, err
				}
				n := 0
				mu.Lock()
				defer mu.Unlock()
				for uri, names := range found {
					out[uri] = append(out[uri], names...)
					n += len(names)
				}
				return n, nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for uri := range out {
		names := out[uri]
		sort.Slice(names, func(i, j int) bool { return names[i].String() < names[j].String() })
	}
	return out, nil
}
