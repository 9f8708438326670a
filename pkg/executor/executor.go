/*
Package executor drives the UWS transfer job state machine.

Jobs move forward along PENDING < QUEUED < EXECUTING < COMPLETED with
side exits to ABORTED and ERROR. Synchronous transfers are created
directly in EXECUTING and negotiated inline; asynchronous ones wait in
PENDING for a RUN command and execute in a background goroutine. Abort
is cooperative: the running goroutine is signalled and the job is driven
to ABORTED once the backend returns or the grace period expires.
*/
package executor

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid"
	"github.com/rs/zerolog"

	"github.com/icrar/govospace/pkg/errtypes"
	"github.com/icrar/govospace/pkg/events"
	"github.com/icrar/govospace/pkg/log"
	"github.com/icrar/govospace/pkg/space"
	"github.com/icrar/govospace/pkg/storage"
	"github.com/icrar/govospace/pkg/types"
	"github.com/icrar/govospace/pkg/vosxml"
)

// Executor owns the job table and coordinates transfers between the
// metadata store and the storage backend.
type Executor struct {
	store     storage.Store
	backend   space.Backend
	broker    *events.Broker
	codec     *vosxml.Codec
	endpoints []space.Endpoint
	grace     time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
	entropy io.Reader
}

// New returns an executor negotiating against the given endpoint
// candidates.
func New(store storage.Store, backend space.Backend, broker *events.Broker, codec *vosxml.Codec, endpoints []space.Endpoint, grace time.Duration) *Executor {
	return &Executor{
		store:     store,
		backend:   backend,
		broker:    broker,
		codec:     codec,
		endpoints: endpoints,
		grace:     grace,
		logger:    log.WithComponent("executor"),
		running:   make(map[string]context.CancelFunc),
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
}

func (e *Executor) newID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), e.entropy).String()
}

// Create inserts a job for the transfer with the given initial phase
// and returns the job record.
func (e *Executor) Create(t *types.Transfer, identity string, phase types.Phase) (*types.Job, error) {
	if t.IsProtocolTransfer() && len(t.Protocols) == 0 {
		return nil, errtypes.InvalidArgument("protocol transfer without protocols")
	}
	xml, err := e.codec.EncodeTransfer(t)
	if err != nil {
		return nil, errtypes.InternalError(err.Error())
	}
	now := time.Now()
	job := &types.Job{
		ID:          e.newID(),
		Owner:       identity,
		Phase:       phase,
		Target:      t.Target,
		TransferXML: string(xml),
		Created:     now,
	}
	if phase == types.PhaseExecuting {
		job.Started = now
	}
	if err := e.store.CreateJob(job); err != nil {
		return nil, err
	}
	e.publish(events.EventJobCreated, job.ID, job.Phase)
	return job, nil
}

// Get returns the job, enforcing ownership.
func (e *Executor) Get(jobID, identity string) (*types.Job, error) {
	job, err := e.store.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.Owner != identity {
		return nil, errtypes.PermissionDenied(identity + " is not the owner of job " + jobID)
	}
	return job, nil
}

// Phase returns the job phase, enforcing ownership.
func (e *Executor) Phase(jobID, identity string) (types.Phase, error) {
	job, err := e.Get(jobID, identity)
	if err != nil {
		return 0, err
	}
	return job.Phase, nil
}

// TransferDetails returns the negotiated result document. Results are
// readable only once the job has reached EXECUTING.
func (e *Executor) TransferDetails(jobID, identity string) (string, error) {
	job, err := e.Get(jobID, identity)
	if err != nil {
		return "", err
	}
	if !job.Phase.Executing() {
		return "", errtypes.InvalidJobState("job " + jobID + " is not EXECUTING")
	}
	if job.ResultsXML == "" {
		return "", errtypes.InvalidArgument("no transferDetails for job " + jobID)
	}
	return job.ResultsXML, nil
}

// Run starts an asynchronous job: PENDING -> QUEUED, then EXECUTING in
// the background.
func (e *Executor) Run(jobID, identity string) error {
	job, err := e.Get(jobID, identity)
	if err != nil {
		return err
	}
	if job.Phase != types.PhasePending {
		return errtypes.InvalidJobState("job " + jobID + " is " + job.Phase.String())
	}
	if _, err := e.store.UpdatePhase(jobID, types.PhaseQueued); err != nil {
		return err
	}
	e.publish(events.EventJobPhase, jobID, types.PhaseQueued)

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.running[jobID] = cancel
	e.mu.Unlock()

	go e.execute(ctx, jobID)
	return nil
}

func (e *Executor) execute(ctx context.Context, jobID string) {
	defer func() {
		e.mu.Lock()
		delete(e.running, jobID)
		e.mu.Unlock()
	}()

	logger := log.WithJob(jobID)
	if _, err := e.store.UpdatePhase(jobID, types.PhaseExecuting); err != nil {
		// Aborted before it started.
		logger.Debug().Err(err).Msg("job not started")
		return
	}
	e.publish(events.EventJobPhase, jobID, types.PhaseExecuting)

	job, err := e.store.GetJob(jobID)
	if err != nil {
		logger.Error().Err(err).Msg("job vanished")
		return
	}

	done, _, err := e.perform(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			// Abort owns the terminal transition.
			return
		}
		e.fail(job, err)
		return
	}
	if done {
		if _, err := e.store.UpdatePhase(jobID, types.PhaseCompleted); err == nil {
			e.publish(events.EventJobPhase, jobID, types.PhaseCompleted)
		}
	}
}

// RunSync negotiates a synchronous protocol transfer inline and returns
// the chosen endpoint URL. The job stays EXECUTING until the data plane
// finishes.
func (e *Executor) RunSync(job *types.Job) (string, error) {
	_, endpoint, err := e.perform(context.Background(), job)
	if err != nil {
		e.fail(job, err)
		return "", err
	}
	return endpoint, nil
}

// Abort cooperatively cancels a job and clears its busy lease.
func (e *Executor) Abort(jobID, identity string) error {
	job, err := e.Get(jobID, identity)
	if err != nil {
		return err
	}
	if job.Phase.Terminal() {
		return errtypes.InvalidJobState("job " + jobID + " is " + job.Phase.String())
	}

	e.mu.Lock()
	cancel, active := e.running[jobID]
	e.mu.Unlock()
	if active {
		cancel()
		// Bounded grace for the backend to let go.
		deadline := time.Now().Add(e.grace)
		for time.Now().Before(deadline) {
			e.mu.Lock()
			_, still := e.running[jobID]
			e.mu.Unlock()
			if !still {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	if _, err := e.store.UpdatePhase(jobID, types.PhaseAborted); err != nil {
		return err
	}
	e.clearBusy(job)
	e.publish(events.EventJobPhase, jobID, types.PhaseAborted)
	return nil
}

// AuthorizeDataTransfer admits a data-plane request: the job must be
// EXECUTING, target the requested path, and point in the requested
// direction. Possession of a live job id is the data-plane credential.
func (e *Executor) AuthorizeDataTransfer(jobID, nodePath string, put bool) error {
	job, err := e.store.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.Phase != types.PhaseExecuting {
		return errtypes.InvalidJobState("job " + jobID + " is " + job.Phase.String())
	}
	if job.Target != nodePath {
		return errtypes.PermissionDenied("job " + jobID + " does not target " + nodePath)
	}
	t, err := e.codec.ParseTransfer([]byte(job.TransferXML))
	if err != nil {
		return errtypes.InternalError(err.Error())
	}
	if put && !t.IsPush() {
		return errtypes.PermissionDenied("job " + jobID + " is not a push")
	}
	if !put && !t.IsPull() {
		return errtypes.PermissionDenied("job " + jobID + " is not a pull")
	}
	return nil
}

// FinishDataTransfer finalizes a protocol transfer once the data plane
// reports completion for the job carried in the endpoint URL.
func (e *Executor) FinishDataTransfer(jobID string, transferErr error) {
	job, err := e.store.GetJob(jobID)
	if err != nil || job.Phase.Terminal() {
		return
	}
	if transferErr != nil {
		e.fail(job, transferErr)
		return
	}
	if _, err := e.store.UpdatePhase(jobID, types.PhaseCompleted); err != nil {
		return
	}
	e.clearBusy(job)
	e.publish(events.EventJobPhase, jobID, types.PhaseCompleted)
}

// Recover runs the startup pass over the job table.
func (e *Executor) Recover() error {
	n, err := e.store.RecoverJobs()
	if err != nil {
		return err
	}
	if n > 0 {
		e.logger.Warn().Int("jobs", n).Msg("recovered interrupted jobs")
	}
	return nil
}

func (e *Executor) fail(job *types.Job, cause error) {
	if _, err := e.store.SetJobError(job.ID, cause.Error()); err != nil {
		logger := log.WithJob(job.ID)
		logger.Error().Err(err).Msg("failed to record job error")
		return
	}
	e.clearBusy(job)
	e.publish(events.EventJobPhase, job.ID, types.PhaseError)
}

func (e *Executor) clearBusy(job *types.Job) {
	if job.Target == "" {
		return
	}
	if err := e.store.SetBusy(job.Target, false); err != nil {
		logger := log.WithPath(job.Target)
		logger.Debug().Err(err).Msg("busy bit not cleared")
	}
}

func (e *Executor) publish(t events.EventType, jobID string, phase types.Phase) {
	if e.broker == nil {
		return
	}
	e.broker.Publish(events.New(t, jobID, map[string]string{
		"job_id": jobID,
		"phase":  phase.String(),
	}))
}
