package storage

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/icrar/govospace/pkg/errtypes"
	"github.com/icrar/govospace/pkg/types"
)

// swapped out in tests
var nowFunc = time.Now

func getJob(b *bolt.Bucket, id string) (*types.Job, error) {
	data := b.Get([]byte(id))
	if data == nil {
		return nil, errtypes.NodeNotFound("job " + id)
	}
	var job types.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func putJob(b *bolt.Bucket, job *types.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return b.Put([]byte(job.ID), data)
}

// CreateJob inserts a new job row.
func (s *BoltStore) CreateJob(job *types.Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		if b.Get([]byte(job.ID)) != nil {
			return errtypes.DuplicateNode("job " + job.ID)
		}
		return putJob(b, job)
	})
}

// GetJob returns the job with the given id.
func (s *BoltStore) GetJob(id string) (*types.Job, error) {
	var job *types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		job, err = getJob(tx.Bucket(bucketJobs), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdatePhase applies a phase transition, enforcing the state machine:
// forward along the chain, or to ABORTED/ERROR from any non-terminal
// phase. Start and end timestamps are stamped as phases are entered.
func (s *BoltStore) UpdatePhase(id string, phase types.Phase) (*types.Job, error) {
	var job *types.Job
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		var err error
		job, err = getJob(b, id)
		if err != nil {
			return err
		}
		if !job.Phase.CanTransition(phase) {
			return errtypes.InvalidJobState(job.Phase.String() + " -> " + phase.String())
		}
		job.Phase = phase
		now := nowFunc()
		if phase == types.PhaseExecuting && job.Started.IsZero() {
			job.Started = now
		}
		if phase.Terminal() {
			job.Ended = now
		}
		return putJob(b, job)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// SetResults stores the negotiated transferDetails document.
func (s *BoltStore) SetResults(id, resultsXML string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		job, err := getJob(b, id)
		if err != nil {
			return err
		}
		job.ResultsXML = resultsXML
		return putJob(b, job)
	})
}

// SetJobError drives the job to ERROR preserving the failure message.
func (s *BoltStore) SetJobError(id, msg string) (*types.Job, error) {
	var job *types.Job
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		var err error
		job, err = getJob(b, id)
		if err != nil {
			return err
		}
		if job.Phase.Terminal() {
			return errtypes.InvalidJobState(job.Phase.String() + " is terminal")
		}
		job.Phase = types.PhaseError
		job.Error = msg
		job.Ended = nowFunc()
		return putJob(b, job)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// RecoverJobs runs the startup recovery pass: busy leases held by jobs
// in terminal phases are cleared, and jobs found QUEUED or EXECUTING are
// driven to ERROR since their worker did not survive the restart.
// Returns the number of jobs recovered.
func (s *BoltStore) RecoverJobs() (int, error) {
	recovered := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		jobs := tx.Bucket(bucketJobs)
		nodes := tx.Bucket(bucketNodes)

		var affected []*types.Job
		err := jobs.ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if job.Phase == types.PhaseQueued || job.Phase == types.PhaseExecuting || job.Phase.Terminal() {
				affected = append(affected, &job)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, job := range affected {
			if job.Target != "" {
				if rec, err := getNodeRecord(nodes, job.Target); err == nil && rec.Busy {
					rec.Busy = false
					if err := putNodeRecord(nodes, job.Target, rec); err != nil {
						return err
					}
				}
			}
			if !job.Phase.Terminal() {
				job.Phase = types.PhaseError
				job.Error = "job interrupted by service restart"
				job.Ended = nowFunc()
				recovered++
				if err := putJob(jobs, job); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return recovered, nil
}
