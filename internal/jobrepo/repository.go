// Package jobrepo persists batch job and step executions in a bbolt file so
// that a restarted process can tell which steps of a job instance already
// completed.
package jobrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/JonMunkholm/reconcile/internal/batch"
)

// Bucket names.
const (
	bucketJobs      = "job_executions"
	bucketSteps     = "step_executions"
	bucketLastSteps = "last_step_by_instance"
)

// Repository is a batch.Repository backed by bbolt.
type Repository struct {
	db *bolt.DB
}

var _ batch.Repository = (*Repository)(nil)

// Open opens or creates the repository file at path. It fails after
// timeout when another process holds the file.
func Open(path string, timeout time.Duration) (*Repository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create repository directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open execution repository %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{bucketJobs, bucketSteps, bucketLastSteps} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) SaveJobExecution(_ context.Context, rec batch.JobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job execution: %w", err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketJobs)).Put([]byte(rec.ID), data)
	})
}

func (r *Repository) SaveStepExecution(_ context.Context, rec batch.StepRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal step execution: %w", err)
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(bucketSteps)).Put([]byte(rec.ID), data); err != nil {
			return err
		}
		if rec.InstanceKey == "" {
			return nil
		}

		// Point the instance index at rec unless a later execution of the
		// step is already indexed.
		index := tx.Bucket([]byte(bucketLastSteps))
		key := lastStepKey(rec.InstanceKey, rec.StepName)
		if current := index.Get(key); current != nil && string(current) != rec.ID {
			prev, err := getStep(tx, string(current))
			if err == nil && prev.StartTime.After(rec.StartTime) {
				return nil
			}
		}
		return index.Put(key, []byte(rec.ID))
	})
}

func (r *Repository) LastStepExecution(_ context.Context, instanceKey, stepName string) (batch.StepRecord, error) {
	var rec batch.StepRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket([]byte(bucketLastSteps)).Get(lastStepKey(instanceKey, stepName))
		if id == nil {
			return batch.ErrNotFound
		}
		var err error
		rec, err = getStep(tx, string(id))
		return err
	})
	return rec, err
}

func (r *Repository) JobExecution(_ context.Context, id string) (batch.JobRecord, error) {
	var rec batch.JobRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketJobs)).Get([]byte(id))
		if data == nil {
			return batch.ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

func (r *Repository) JobExecutions(_ context.Context, limit int) ([]batch.JobRecord, error) {
	var recs []batch.JobRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketJobs)).ForEach(func(k, v []byte) error {
			var rec batch.JobRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode job execution %s: %w", k, err)
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	batch.SortNewestFirst(recs)
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func getStep(tx *bolt.Tx, id string) (batch.StepRecord, error) {
	var rec batch.StepRecord
	data := tx.Bucket([]byte(bucketSteps)).Get([]byte(id))
	if data == nil {
		return rec, fmt.Errorf("step execution %s: %w", id, batch.ErrNotFound)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode step execution %s: %w", id, err)
	}
	return rec, nil
}

// lastStepKey joins the instance key and step name with a NUL separator,
// which occurs in neither.
func lastStepKey(instanceKey, stepName string) []byte {
	return []byte(instanceKey + "\x00" + stepName)
}

// IsLocked reports whether err means another process holds the file.
func IsLocked(err error) bool {
	return errors.Is(err, bolt.ErrTimeout)
}
