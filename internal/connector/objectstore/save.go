package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/sirupsen/logrus"

	"github.com/partcat/partcat/internal/connector"
	"github.com/partcat/partcat/internal/errors"
	"github.com/partcat/partcat/pkg/types"
)

// SavePartitions registers partitions by writing their marker files. Drops
// run first. Object storage has no transactions: the first failure stops
// the save and earlier changes stay applied.
func (c *Connector) SavePartitions(ctx context.Context, table types.QualifiedName, req *types.PartitionsSaveRequest) (*types.PartitionsSaveResponse, error) {
	parts, err := connector.PrepareSave(table, req)
	if err != nil {
		return nil, err
	}
	table = table.Table()

	for _, p := range parts {
		want := c.store.URI(partitionDir(p.Name))
		if p.Location != "" && p.Location != want {
			return nil, errors.NewValidationError(errors.CodeInvalidRequest,
				fmt.Sprintf("partition %s must be located at %s", p.Name, want))
		}
	}

	mu := c.tableLock(table)
	mu.Lock()
	defer mu.Unlock()

	resp := &types.PartitionsSaveResponse{Added: []string{}, Updated: []string{}}
	for _, name := range req.PartitionIdsForDeletes {
		existed, err := c.deletePartition(ctx, types.NewPartitionName(table, name))
		if err != nil {
			return nil, err
		}
		if existed {
			resp.Dropped = append(resp.Dropped, name)
		}
	}

	for _, p := range parts {
		name := p.Name.PartitionName
		exists, err := c.partitionExists(ctx, p.Name)
		if err != nil {
			return nil, err
		}

		switch {
		case exists && !req.CheckIfExists:
			return nil, errors.NewConnectorError(errors.CodePartitionExists,
				fmt.Sprintf("partition %s already exists", p.Name), nil)
		case exists && req.AlterIfExists:
			if err := c.writeMarker(ctx, p); err != nil {
				return nil, err
			}
			resp.Updated = append(resp.Updated, name)
		case exists:
			// Present and not altered.
		default:
			if err := c.writeMarker(ctx, p); err != nil {
				return nil, err
			}
			resp.Added = append(resp.Added, name)
		}
	}

	c.log.WithFields(logrus.Fields{
		"table":   table.String(),
		"added":   len(resp.Added),
		"updated": len(resp.Updated),
		"dropped": len(resp.Dropped),
	}).Debug("saved partitions")
	return resp, nil
}

func partitionDir(name types.QualifiedName) string {
	return path.Join(tableDir(name), name.PartitionName)
}

func (c *Connector) writeMarker(ctx context.Context, p types.PartitionDto) error {
	data, err := json.Marshal(marker{Metadata: p.Metadata})
	if err != nil {
		return errors.NewInternalError("encode partition marker", err)
	}
	if err := c.store.Put(ctx, path.Join(partitionDir(p.Name), MarkerFile), bytes.NewReader(data)); err != nil {
		return storageError(fmt.Sprintf("failed to write marker of %s", p.Name), err)
	}
	return nil
}

// partitionExists reports whether any object belongs to name. A marker
// answers without listing the partition directory.
func (c *Connector) partitionExists(ctx context.Context, name types.QualifiedName) (bool, error) {
	ok, err := c.store.Exists(ctx, path.Join(partitionDir(name), MarkerFile))
	if err != nil {
		return false, storageError(fmt.Sprintf("failed to check %s", name), err)
	}
	if ok {
		return true, nil
	}

	l, err := c.scan(ctx, partitionDir(name))
	if err != nil {
		return false, err
	}
	for _, ps := range l.parts {
		if ps.dto.Name.PartitionName == name.PartitionName {
			return true, nil
		}
	}
	return false, nil
}

// DeletePartitions removes the objects of each named partition. Every
// partition is attempted; failures are collected in a BatchError.
func (c *Connector) DeletePartitions(ctx context.Context, partitions []types.QualifiedName) error {
	batch := errors.NewBatchError(connector.CapDeletePartitions.String())
	for _, name := range partitions {
		if err := connector.ValidatePartition(name); err != nil {
			batch.Add(name.String(), err)
			continue
		}
		mu := c.tableLock(name)
		mu.Lock()
		existed, err := c.deletePartition(ctx, name)
		mu.Unlock()
		if err == nil && !existed {
			err = errors.NewConnectorError(errors.CodePartitionNotFound,
				fmt.Sprintf("partition %s does not exist", name), nil)
		}
		batch.Add(name.String(), err)
	}
	if batch.Len() > 0 {
		c.log.WithField("failed", batch.Failed()).Warn("some partitions could not be deleted")
	}
	return batch.ErrorOrNil()
}

// deletePartition removes the objects of one partition. Nested partitions
// below its directory are kept. Called with the table lock held.
func (c *Connector) deletePartition(ctx context.Context, name types.QualifiedName) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir := partitionDir(name)
	l, err := c.scan(ctx, dir)
	if err != nil {
		return false, err
	}

	var target *partitionState
	for _, ps := range l.parts {
		if ps.dto.Name.PartitionName == name.PartitionName {
			target = ps
		}
	}
	if target == nil {
		return false, nil
	}

	if len(l.parts) == 1 {
		n, err := c.store.DeletePrefix(ctx, dir)
		if err != nil {
			return false, storageError(fmt.Sprintf("failed to delete %s", name), err)
		}
		c.log.WithFields(logrus.Fields{"partition": name.String(), "objects": n}).Debug("deleted partition")
		return true, nil
	}

	for _, obj := range target.objects {
		if err := c.store.Delete(ctx, obj); err != nil {
			return false, storageError(fmt.Sprintf("failed to delete %s", name), err)
		}
	}
	c.log.WithFields(logrus.Fields{"partition": name.String(), "objects": len(target.objects)}).Debug("deleted partition")
	return true, nil
}
