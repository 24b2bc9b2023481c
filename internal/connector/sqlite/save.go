package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/partcat/partcat/internal/connector"
	"github.com/partcat/partcat/internal/errors"
	"github.com/partcat/partcat/pkg/types"
)

// SavePartitions applies drops, adds and alters in one transaction. Either
// every change is committed or none is.
func (s *Store) SavePartitions(ctx context.Context, table types.QualifiedName, req *types.PartitionsSaveRequest) (*types.PartitionsSaveResponse, error) {
	parts, err := connector.PrepareSave(table, req)
	if err != nil {
		return nil, err
	}
	table = table.Table()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, backendError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	resp := &types.PartitionsSaveResponse{Added: []string{}, Updated: []string{}}
	for _, name := range req.PartitionIdsForDeletes {
		existed, err := deletePartitionTx(ctx, tx, table, name)
		if err != nil {
			return nil, err
		}
		if existed {
			resp.Dropped = append(resp.Dropped, name)
		}
	}

	now := time.Now().UnixNano()
	for _, p := range parts {
		name := p.Name.PartitionName
		id, exists, err := lookupPartitionID(ctx, tx, table, name)
		if err != nil {
			return nil, err
		}

		switch {
		case exists && !req.CheckIfExists:
			return nil, errors.NewConnectorError(errors.CodePartitionExists,
				fmt.Sprintf("partition %s already exists", p.Name), nil)
		case exists && req.AlterIfExists:
			if err := updatePartitionTx(ctx, tx, id, p, now); err != nil {
				return nil, err
			}
			resp.Updated = append(resp.Updated, name)
		case exists:
			// Present and not altered.
		default:
			if err := insertPartitionTx(ctx, tx, table, p, now); err != nil {
				return nil, err
			}
			resp.Added = append(resp.Added, name)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, backendError("failed to commit save", err)
	}

	s.log.WithFields(logrus.Fields{
		"table":   table.String(),
		"added":   len(resp.Added),
		"updated": len(resp.Updated),
		"dropped": len(resp.Dropped),
	}).Debug("saved partitions")
	s.logPartitionCountThreshold(ctx, table)
	return resp, nil
}

func lookupPartitionID(ctx context.Context, tx *sql.Tx, table types.QualifiedName, name string) (int64, bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM partitions WHERE database_name = ? AND table_name = ? AND name = ?",
		table.DatabaseName, table.TableName, name,
	).Scan(&id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, backendError("failed to look up partition", err)
	}
	return id, true, nil
}

func insertPartitionTx(ctx context.Context, tx *sql.Tx, table types.QualifiedName, p types.PartitionDto, now int64) error {
	metadata, err := encodeMetadata(p.Metadata)
	if err != nil {
		return errors.NewValidationError(errors.CodeInvalidRequest,
			fmt.Sprintf("partition %s: invalid metadata: %v", p.Name.PartitionName, err))
	}
	createdAt := now
	if !p.CreatedAt.IsZero() {
		createdAt = p.CreatedAt.UnixNano()
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO partitions (database_name, table_name, name, location, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		table.DatabaseName, table.TableName, p.Name.PartitionName, p.Location, metadata, createdAt, now)
	if err != nil {
		return backendError(fmt.Sprintf("failed to insert partition %s", p.Name.PartitionName), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return backendError("failed to read partition id", err)
	}

	for i, kv := range p.Keys {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO partition_key_values (partition_id, position, key, value) VALUES (?, ?, ?, ?)",
			id, i, kv.Key, kv.Value,
		); err != nil {
			return backendError(fmt.Sprintf("failed to insert key %s of partition %s", kv.Key, p.Name.PartitionName), err)
		}
	}
	return nil
}

// updatePartitionTx alters location and metadata. Key values follow from
// the name and never change.
func updatePartitionTx(ctx context.Context, tx *sql.Tx, id int64, p types.PartitionDto, now int64) error {
	metadata, err := encodeMetadata(p.Metadata)
	if err != nil {
		return errors.NewValidationError(errors.CodeInvalidRequest,
			fmt.Sprintf("partition %s: invalid metadata: %v", p.Name.PartitionName, err))
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE partitions SET location = ?, metadata = ?, updated_at = ? WHERE id = ?",
		p.Location, metadata, now, id,
	); err != nil {
		return backendError(fmt.Sprintf("failed to update partition %s", p.Name.PartitionName), err)
	}
	return nil
}

// deletePartitionTx removes one partition and its key values. It reports
// whether the partition existed.
func deletePartitionTx(ctx context.Context, tx *sql.Tx, table types.QualifiedName, name string) (bool, error) {
	id, exists, err := lookupPartitionID(ctx, tx, table, name)
	if err != nil || !exists {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM partition_key_values WHERE partition_id = ?", id); err != nil {
		return false, backendError(fmt.Sprintf("failed to delete key values of %s", name), err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM partitions WHERE id = ?", id); err != nil {
		return false, backendError(fmt.Sprintf("failed to delete partition %s", name), err)
	}
	return true, nil
}

// DeletePartitions removes each named partition in its own transaction.
// Every partition is attempted; failures are collected in a BatchError.
func (s *Store) DeletePartitions(ctx context.Context, partitions []types.QualifiedName) error {
	batch := errors.NewBatchError(connector.CapDeletePartitions.String())
	for _, name := range partitions {
		if err := connector.ValidatePartition(name); err != nil {
			batch.Add(name.String(), err)
			continue
		}
		if err := s.deleteOne(ctx, name); err != nil {
			batch.Add(name.String(), err)
		}
	}
	if batch.Len() > 0 {
		s.log.WithField("failed", batch.Failed()).Warn("some partitions could not be deleted")
	}
	return batch.ErrorOrNil()
}

func (s *Store) deleteOne(ctx context.Context, name types.QualifiedName) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return backendError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	existed, err := deletePartitionTx(ctx, tx, name.Table(), name.PartitionName)
	if err != nil {
		return err
	}
	if !existed {
		return errors.NewConnectorError(errors.CodePartitionNotFound,
			fmt.Sprintf("partition %s does not exist", name), nil)
	}
	if err := tx.Commit(); err != nil {
		return backendError("failed to commit delete", err)
	}
	return nil
}

// partitionCountThresholds defines the per-table partition counts at which
// warnings are emitted.
var partitionCountThresholds = []int{1000000, 500000, 100000}

// logPartitionCountThreshold warns when a table grows past a threshold.
// Called with the write lock held, after each save.
func (s *Store) logPartitionCountThreshold(ctx context.Context, table types.QualifiedName) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM partitions WHERE database_name = ? AND table_name = ?",
		table.DatabaseName, table.TableName,
	).Scan(&count)
	if err != nil {
		return // best-effort; don't fail the write path
	}
	for _, threshold := range partitionCountThresholds {
		if count >= threshold {
			s.log.WithFields(logrus.Fields{"table": table.String(), "partitions": count}).
				Warnf("table has crossed %dK partitions; prefer filters that prune on leading keys", threshold/1000)
			return
		}
	}
}
