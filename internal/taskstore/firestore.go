// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package taskstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pdiddy/docflow/internal/task"
)

// DefaultCollection is used when no collection name is configured.
const DefaultCollection = "docflow_tasks"

// taskDoc is the Firestore shape of a task. Summary fields sit beside the
// JSON record so listings can use a projection.
type taskDoc struct {
	TaskType   string    `firestore:"taskType"`
	Status     string    `firestore:"status"`
	InputPath  string    `firestore:"inputPath"`
	OutputPath string    `firestore:"outputPath"`
	Total      int       `firestore:"total"`
	Succeeded  int       `firestore:"succeeded"`
	Failed     int       `firestore:"failed"`
	Skipped    int       `firestore:"skipped"`
	Pending    int       `firestore:"pending"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
	Record     string    `firestore:"record"`
}

// Firestore keeps one document per task in a collection, with cancel
// requests in a sibling collection named <collection>_cancels.
type Firestore struct {
	client  *firestore.Client
	tasks   *firestore.CollectionRef
	cancels *firestore.CollectionRef
}

// NewFirestore connects to the given project. The FIRESTORE_EMULATOR_HOST
// environment variable redirects the client to a local emulator.
func NewFirestore(ctx context.Context, projectID, collection string) (*Firestore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: firestore project id is required", task.ErrInvalidInput)
	}
	if collection == "" {
		collection = DefaultCollection
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: creating firestore client: %v", task.ErrStore, err)
	}
	return &Firestore{
		client:  client,
		tasks:   client.Collection(collection),
		cancels: client.Collection(collection + "_cancels"),
	}, nil
}

// Close releases the client.
func (s *Firestore) Close() error {
	return s.client.Close()
}

// Put replaces the task document. A single document write is atomic.
func (s *Firestore) Put(ctx context.Context, rec *task.Record) error {
	doc, err := toDoc(rec)
	if err != nil {
		return err
	}
	if _, err := s.tasks.Doc(rec.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("%w: writing task %s: %v", task.ErrStore, rec.ID, err)
	}
	return nil
}

func (s *Firestore) Get(ctx context.Context, id string) (*task.Record, error) {
	snap, err := s.tasks.Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: task %s", task.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading task %s: %v", task.ErrStore, id, err)
	}
	var doc taskDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("%w: task %s is corrupt: %v", task.ErrFatal, id, err)
	}
	return decodeRecord(id, []byte(doc.Record))
}

// List projects the summary fields only.
func (s *Firestore) List(ctx context.Context) ([]task.Summary, error) {
	iter := s.tasks.Select("taskType", "status", "inputPath", "outputPath",
		"total", "succeeded", "failed", "skipped", "pending", "createdAt", "updatedAt").
		OrderBy("createdAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var out []task.Summary
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: listing tasks: %v", task.ErrStore, err)
		}
		var doc taskDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("%w: decoding task %s: %v", task.ErrStore, snap.Ref.ID, err)
		}
		out = append(out, doc.summary(snap.Ref.ID))
	}
	return out, nil
}

func (s *Firestore) Delete(ctx context.Context, id string) error {
	if _, err := s.tasks.Doc(id).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("%w: deleting task %s: %v", task.ErrStore, id, err)
	}
	return s.ClearCancel(ctx, id)
}

func (s *Firestore) RequestCancel(ctx context.Context, id string) error {
	_, err := s.cancels.Doc(id).Set(ctx, map[string]interface{}{
		"requestedAt": firestore.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("%w: requesting cancel for %s: %v", task.ErrStore, id, err)
	}
	return nil
}

func (s *Firestore) CancelRequested(ctx context.Context, id string) (bool, error) {
	_, err := s.cancels.Doc(id).Get(ctx)
	switch {
	case err == nil:
		return true, nil
	case status.Code(err) == codes.NotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: checking cancel request for %s: %v", task.ErrStore, id, err)
	}
}

func (s *Firestore) ClearCancel(ctx context.Context, id string) error {
	if _, err := s.cancels.Doc(id).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("%w: clearing cancel request for %s: %v", task.ErrStore, id, err)
	}
	return nil
}

func toDoc(rec *task.Record) (taskDoc, error) {
	data, err := marshalRecord(rec)
	if err != nil {
		return taskDoc{}, err
	}
	c := rec.Counts()
	return taskDoc{
		TaskType:   string(rec.Type),
		Status:     string(rec.Status),
		InputPath:  rec.InputPath,
		OutputPath: rec.OutputPath,
		Total:      c.Total,
		Succeeded:  c.Succeeded,
		Failed:     c.Failed,
		Skipped:    c.Skipped,
		Pending:    c.Pending,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
		Record:     string(data),
	}, nil
}

func (d taskDoc) summary(id string) task.Summary {
	return task.Summary{
		ID:         id,
		Type:       task.Type(d.TaskType),
		Status:     task.Status(d.Status),
		InputPath:  d.InputPath,
		OutputPath: d.OutputPath,
		Counts: task.Counts{
			Total:     d.Total,
			Succeeded: d.Succeeded,
			Failed:    d.Failed,
			Skipped:   d.Skipped,
			Pending:   d.Pending,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
