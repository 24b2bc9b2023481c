// Package objectstore serves partitions laid out as Hive-style directories in
// object storage: <database>/<table>/<k1>=<v1>/<k2>=<v2>/<files>. The
// partition list is derived from an object listing on every call.
package objectstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/partcat/partcat/internal/connector"
	"github.com/partcat/partcat/internal/errors"
	"github.com/partcat/partcat/internal/logging"
	"github.com/partcat/partcat/internal/storage"
	"github.com/partcat/partcat/pkg/types"
)

// MarkerFile holds the metadata of a partition registered through
// SavePartitions. It also makes a partition without data files visible.
const MarkerFile = "_partition.json"

// Metadata keys derived from the listing.
const (
	MetaNumFiles  = "numFiles"
	MetaTotalSize = "totalSize"
)

// Connector implements the partition contract over an ObjectStorage.
type Connector struct {
	store   storage.ObjectStorage
	catalog string
	log     *logrus.Entry

	// locks serialize saves and deletes per table, striped by name hash.
	locks [lockStripes]sync.Mutex
}

const lockStripes = 16

// tableLock returns the mutex guarding writes to the table of name.
func (c *Connector) tableLock(name types.QualifiedName) *sync.Mutex {
	return &c.locks[name.Table().Hash()%lockStripes]
}

var _ connector.PartitionService = (*Connector)(nil)

// New returns a connector serving catalog from store.
func New(store storage.ObjectStorage, catalog string, logger logrus.FieldLogger) *Connector {
	return &Connector{
		store:   store,
		catalog: catalog,
		log:     logging.Component(logger, "objectstore").WithField("catalog", catalog),
	}
}

// Capabilities declares the full contract.
func (c *Connector) Capabilities() connector.CapabilitySet {
	return connector.CapAll
}

// marker is the JSON document stored in MarkerFile.
type marker struct {
	Metadata map[string]string `json:"metadata,omitempty"`
}

// partitionState is one partition assembled from the listing.
type partitionState struct {
	dto       types.PartitionDto
	dir       string
	files     int
	size      int64
	hasMarker bool
	// objects belonging to this partition, excluding nested partitions
	objects []string
}

// listing is the result of scanning one storage prefix.
type listing struct {
	parts []*partitionState
	// tables that have at least one object
	tables map[types.QualifiedName]bool
}

// scan lists every object under prefix and assembles partitions from their
// paths. Objects that do not sit inside a k=v directory are ignored.
func (c *Connector) scan(ctx context.Context, prefix string) (*listing, error) {
	objects, err := c.store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, storageError("failed to list objects", err)
	}

	out := &listing{tables: make(map[types.QualifiedName]bool)}
	byDir := make(map[string]*partitionState)
	for _, obj := range objects {
		segs := strings.Split(obj.Path, "/")
		if len(segs) < 3 {
			continue
		}
		table := types.NewTableName(c.catalog, segs[0], segs[1])
		out.tables[table] = true

		dirs := segs[2 : len(segs)-1]
		n := 0
		for n < len(dirs) && strings.Contains(dirs[n], "=") {
			n++
		}
		if n == 0 {
			continue
		}
		name := strings.Join(dirs[:n], "/")
		kv, err := types.ParsePartitionName(name)
		if err != nil {
			continue
		}

		dir := storage.JoinPath(segs[0], segs[1], name)
		ps, ok := byDir[dir]
		if !ok {
			ps = &partitionState{
				dto: types.PartitionDto{
					Name:      types.NewPartitionName(table, name),
					Keys:      kv,
					Location:  c.store.URI(dir),
					CreatedAt: obj.LastModified,
				},
				dir: dir,
			}
			byDir[dir] = ps
			out.parts = append(out.parts, ps)
		}
		if obj.LastModified.Before(ps.dto.CreatedAt) {
			ps.dto.CreatedAt = obj.LastModified
		}
		ps.objects = append(ps.objects, obj.Path)
		if n == len(dirs) && segs[len(segs)-1] == MarkerFile {
			ps.hasMarker = true
			continue
		}
		ps.files++
		ps.size += obj.Size
	}

	sort.Slice(out.parts, func(i, j int) bool {
		return out.parts[i].dto.Name.String() < out.parts[j].dto.Name.String()
	})
	return out, nil
}

func tableDir(table types.QualifiedName) string {
	return storage.JoinPath(table.DatabaseName, table.TableName)
}

// listTable returns the partitions of table. A table is present when any
// object exists under its directory.
func (c *Connector) listTable(ctx context.Context, table types.QualifiedName) ([]*partitionState, error) {
	l, err := c.scan(ctx, tableDir(table))
	if err != nil {
		return nil, err
	}
	if !l.tables[table.Table()] {
		return nil, errors.NewConnectorError(errors.CodeTableNotFound,
			fmt.Sprintf("table %s does not exist", table.Table()), nil)
	}
	return l.parts, nil
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

// selectPage filters, sorts and pages the listed partitions in process.
// Markers are read for the page only.
func (c *Connector) selectPage(ctx context.Context, pr *connector.Request) (*types.Page[types.PartitionDto], error) {
	states, err := c.listTable(ctx, pr.Table)
	if err != nil {
		return nil, err
	}

	all := make([]types.PartitionDto, len(states))
	byName := make(map[string]*partitionState, len(states))
	for i, ps := range states {
		all[i] = ps.dto
		byName[ps.dto.Name.PartitionName] = ps
	}

	selected := connector.Select(pr, all)
	connector.SortPartitions(selected, pr.Sort)
	page := connector.Paginate(pr, selected)

	if pr.IncludeMetadata {
		for i := range page.Items {
			md, err := c.metadata(ctx, byName[page.Items[i].Name.PartitionName])
			if err != nil {
				return nil, err
			}
			page.Items[i].Metadata = md
		}
	}
	for i := range page.Items {
		page.Items[i] = connector.Project(pr, page.Items[i])
	}

	c.log.WithFields(logrus.Fields{
		"table":    pr.Table.String(),
		"listed":   len(all),
		"selected": len(selected),
	}).Debug("filtered partitions")
	return page, nil
}

// metadata merges the marker metadata with the file statistics.
func (c *Connector) metadata(ctx context.Context, ps *partitionState) (map[string]string, error) {
	md := make(map[string]string)
	if ps.hasMarker {
		m, err := c.readMarker(ctx, ps.dir)
		if err != nil {
			return nil, err
		}
		for k, v := range m.Metadata {
			md[k] = v
		}
	}
	md[MetaNumFiles] = strconv.Itoa(ps.files)
	md[MetaTotalSize] = strconv.FormatInt(ps.size, 10)
	return md, nil
}

func (c *Connector) readMarker(ctx context.Context, dir string) (*marker, error) {
	data, err := c.store.Get(ctx, path.Join(dir, MarkerFile))
	if stderrors.Is(err, storage.ErrObjectNotFound) {
		return &marker{}, nil
	}
	if err != nil {
		return nil, storageError("failed to read partition marker", err)
	}
	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.NewConnectorError(errors.CodeBackendFailure,
			fmt.Sprintf("objectstore: corrupt marker in %s", dir), err)
	}
	return &m, nil
}

// GetPartitionCount returns the number of partitions of table.
func (c *Connector) GetPartitionCount(ctx context.Context, table types.QualifiedName) (int, error) {
	if err := connector.ValidateTable(table); err != nil {
		return 0, err
	}
	parts, err := c.listTable(ctx, table)
	if err != nil {
		return 0, err
	}
	return len(parts), nil
}

// GetPartitionNames maps locations back to partitions. URIs outside this
// storage are ignored. Prefix lookups list the parent directory of the
// prefix, so a prefix may end in the middle of a path segment.
func (c *Connector) GetPartitionNames(ctx context.Context, uris []string, prefixSearch bool) (map[string][]types.QualifiedName, error) {
	out := make(map[string][]types.QualifiedName)
	listings := make(map[string]*listing)

	for _, uri := range uris {
		if uri == "" {
			continue
		}
		if _, seen := out[uri]; seen {
			continue
		}
		objectPath, ok := c.store.ObjectPath(uri)
		if !ok {
			continue
		}

		dir := objectPath
		if prefixSearch {
			dir = parentDir(objectPath)
		}
		l, ok := listings[dir]
		if !ok {
			var err error
			if l, err = c.scan(ctx, dir); err != nil {
				return nil, err
			}
			listings[dir] = l
		}

		var names []types.QualifiedName
		for _, ps := range l.parts {
			if connector.MatchURI(ps.dto.Location, uri, prefixSearch) {
				names = append(names, ps.dto.Name)
			}
		}
		if len(names) > 0 {
			out[uri] = names
		}
	}
	return out, nil
}

func parentDir(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return ""
}

// storageError wraps a storage failure. Cancellation and deadline errors
// pass through so the dispatcher can report them as timeouts.
func storageError(msg string, err error) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch {
	case stderrors.Is(err, storage.ErrListFailed):
		return errors.NewStorageError(errors.CodeListFailed, "objectstore: "+msg, err)
	case stderrors.Is(err, storage.ErrDeleteFailed):
		return errors.NewStorageError(errors.CodeDeleteFailed, "objectstore: "+msg, err)
	}
	return errors.NewConnectorError(errors.CodeBackendFailure, "objectstore: "+msg, err)
}
