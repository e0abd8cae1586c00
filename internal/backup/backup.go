package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/flowbit/vanna/internal/storage"
	"github.com/flowbit/vanna/internal/trainingstore"
)

const (
	contentType = "application/vnd.apache.parquet"
	// examplesMetadata records the example count on each uploaded snapshot.
	examplesMetadata = "examples"
)

// Source is the training data being backed up or restored into.
type Source interface {
	List(ctx context.Context) ([]trainingstore.Example, error)
	Put(ctx context.Context, example trainingstore.Example) (string, error)
}

type SnapshotInfo struct {
	Key      string    `json:"key"`
	Examples int       `json:"examples,omitempty"`
	Size     int64     `json:"size"`
	TakenAt  time.Time `json:"taken_at"`
}

type Service struct {
	store  storage.ObjectStore
	source Source
	model  string
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store storage.ObjectStore, source Source, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if source == nil {
		return nil, fmt.Errorf("training source is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store:  store,
		source: source,
		model:  trainingstore.ModelName,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Snapshot uploads all training data as a timestamped parquet file and refreshes the latest pointer.
func (s *Service) Snapshot(ctx context.Context) (SnapshotInfo, error) {
	examples, err := s.source.List(ctx)
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("list training data: %w", err)
	}
	data, err := Encode(examples)
	if err != nil {
		return SnapshotInfo{}, err
	}

	takenAt := s.now().UTC()
	key, err := storage.BuildSnapshotPath(s.model, takenAt)
	if err != nil {
		return SnapshotInfo{}, err
	}
	latest, err := storage.BuildLatestSnapshotPath(s.model)
	if err != nil {
		return SnapshotInfo{}, err
	}
	opts := storage.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{examplesMetadata: strconv.Itoa(len(examples))},
	}
	for _, target := range []string{key, latest} {
		if _, err := s.store.Put(ctx, target, bytes.NewReader(data), int64(len(data)), opts); err != nil {
			return SnapshotInfo{}, fmt.Errorf("upload snapshot: %w", err)
		}
	}

	s.logger.InfoContext(ctx, "training_snapshot_uploaded",
		slog.String("key", key),
		slog.Int("examples", len(examples)),
		slog.Int("bytes", len(data)),
	)
	return SnapshotInfo{Key: key, Examples: len(examples), Size: int64(len(data)), TakenAt: takenAt}, nil
}

// Restore re-adds every example of the snapshot at key, or of the latest snapshot when key is empty.
// Examples keep their IDs, so restoring twice is harmless.
func (s *Service) Restore(ctx context.Context, key string) (int, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		latest, err := storage.BuildLatestSnapshotPath(s.model)
		if err != nil {
			return 0, err
		}
		key = latest
	}

	reader, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return 0, fmt.Errorf("snapshot %q: %w", key, err)
		}
		return 0, fmt.Errorf("download snapshot: %w", err)
	}
	data, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		return 0, fmt.Errorf("read snapshot %q: %w", key, err)
	}

	examples, err := Decode(data)
	if err != nil {
		return 0, fmt.Errorf("decode snapshot %q: %w", key, err)
	}
	for i, example := range examples {
		if _, err := s.source.Put(ctx, example); err != nil {
			return i, fmt.Errorf("restore example %s: %w", example.ID, err)
		}
	}
	s.logger.InfoContext(ctx, "training_snapshot_restored",
		slog.String("key", key),
		slog.Int("examples", len(examples)),
	)
	return len(examples), nil
}

// Snapshots lists timestamped snapshots, newest first. Examples is filled in when the
// object store returns the metadata written by Snapshot.
func (s *Service) Snapshots(ctx context.Context) ([]SnapshotInfo, error) {
	objects, err := s.store.List(ctx, s.model+"/")
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	snapshots := make([]SnapshotInfo, 0, len(objects))
	for _, obj := range objects {
		takenAt, ok := storage.ParseSnapshotTime(obj.Key)
		if !ok {
			continue
		}
		info := SnapshotInfo{Key: obj.Key, Size: obj.Size, TakenAt: takenAt}
		if count, err := strconv.Atoi(obj.Metadata[examplesMetadata]); err == nil {
			info.Examples = count
		}
		snapshots = append(snapshots, info)
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].TakenAt.After(snapshots[j].TakenAt) })
	return snapshots, nil
}

// Prune deletes all but the newest keep snapshots and returns the deleted keys.
func (s *Service) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep < 1 {
		return nil, fmt.Errorf("keep must be >= 1")
	}
	snapshots, err := s.Snapshots(ctx)
	if err != nil {
		return nil, err
	}
	if len(snapshots) <= keep {
		return nil, nil
	}
	deleted := make([]string, 0, len(snapshots)-keep)
	for _, snapshot := range snapshots[keep:] {
		if err := s.store.Delete(ctx, snapshot.Key); err != nil {
			return deleted, fmt.Errorf("delete snapshot %q: %w", snapshot.Key, err)
		}
		deleted = append(deleted, snapshot.Key)
	}
	return deleted, nil
}
