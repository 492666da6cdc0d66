package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketJobs   = []byte("jobs")
	bucketFailed = []byte("failed")
)

// Spool persists queued jobs so they survive a restart. Jobs that exhaust
// their attempts are kept in a separate bucket for inspection.
type Spool struct {
	db *bbolt.DB
}

// OpenSpool opens or creates the spool file at path.
func OpenSpool(path string) (*Spool, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open job spool: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketJobs, bucketFailed} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Spool{db: db}, nil
}

// Close closes the spool file.
func (s *Spool) Close() error {
	return s.db.Close()
}

// Save stores job as pending.
func (s *Spool) Save(job Job) error {
	return s.put(bucketJobs, job)
}

// Remove deletes a finished job.
func (s *Spool) Remove(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketJobs).Delete([]byte(id))
	})
}

// Fail moves a job from pending to failed.
func (s *Spool) Fail(job Job) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		raw, err := json.Marshal(job)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketJobs).Delete([]byte(job.ID)); err != nil {
			return err
		}
		return tx.Bucket(bucketFailed).Put([]byte(job.ID), raw)
	})
}

// Pending returns every stored pending job in id order.
func (s *Spool) Pending() ([]Job, error) {
	return s.list(bucketJobs)
}

// Failed returns every job that exhausted its attempts.
func (s *Spool) Failed() ([]Job, error) {
	return s.list(bucketFailed)
}

func (s *Spool) put(bucket []byte, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(job.ID), raw)
	})
}

func (s *Spool) list(bucket []byte) ([]Job, error) {
	var jobs []Job
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var job Job
			if err := json.Unmarshal(v, &job); err != nil {
				return fmt.Errorf("job %s: %w", k, err)
			}
			jobs = append(jobs, job)
			return nil
		})
	})
	return jobs, err
}
