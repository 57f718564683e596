package etl

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"turbinelens/analysis"
	"turbinelens/jobs"
)

// State of an ingestion orchestrator
type State int

const (
	Idle State = iota
	Reading
	Validating
	Delegating
	Complete
	Failed
)

var stateNames = map[State]string{
	Idle:       "idle",
	Reading:    "reading",
	Validating: "validating",
	Delegating: "delegating",
	Complete:   "complete",
	Failed:     "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// InFlight reports whether a new ingestion must be refused.
func (s State) InFlight() bool {
	return s == Reading || s == Validating || s == Delegating
}

// Bundle is the result of a completed ingestion. It is published as a whole
// and never modified afterwards.
type Bundle struct {
	Records        []Record         `json:"records"`
	Headers        []string         `json:"headers"`
	Result         *analysis.Result `json:"results"`
	SourceFileName string           `json:"file_name"`
	CompletedAt    time.Time        `json:"completed_at"`
}

// Snapshot is a consistent view of an orchestrator.
type Snapshot struct {
	State      State
	Generation uint64
	FileName   string
	Err        error
	Bundle     *Bundle
}

// Processing is the flag the UI uses to disable new uploads.
func (s Snapshot) Processing() bool {
	return s.State.InFlight()
}

// Submitter runs delegation jobs off the caller's goroutine. TrySubmit must
// not wait for queue space.
type Submitter interface {
	TrySubmit(job jobs.Job) error
}

// Recorder receives ingestion outcomes.
type Recorder interface {
	IngestionFinished(outcome string, records int)
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	ID         string
	Provider   analysis.Provider
	Pool       Submitter
	Timeout    time.Duration // bound on a single provider call, 0 means none
	OnComplete func(Bundle)  // called once per published bundle, outside the lock
	Recorder   Recorder
}

// Orchestrator drives one dashboard's ingestions through
// Idle -> Reading -> Validating -> Delegating -> Complete | Failed.
// At most one ingestion is in flight; results of superseded or torn down
// ingestions are dropped by generation.
type Orchestrator struct {
	id         string
	provider   analysis.Provider
	pool       Submitter
	timeout    time.Duration
	onComplete func(Bundle)
	recorder   Recorder
	log        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	generation uint64
	fileName   string
	err        error
	bundle     *Bundle
	closed     bool
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		id:         opts.ID,
		provider:   opts.Provider,
		pool:       opts.Pool,
		timeout:    opts.Timeout,
		onComplete: opts.OnComplete,
		recorder:   opts.Recorder,
		log:        log.With().Str("dashboard", opts.ID).Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		State:      o.state,
		Generation: o.generation,
		FileName:   o.fileName,
		Err:        o.err,
		Bundle:     o.bundle,
	}
}

// Submit ingests one file. The file type gate, reading and validation run on
// the calling goroutine; the provider call is handed to the pool and Submit
// returns while it is pending. The returned generation identifies this ingestion.
func (o *Orchestrator) Submit(fileName string, content io.Reader) (gen uint64, err error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return 0, ErrClosed
	}
	if o.state.InFlight() {
		o.mu.Unlock()
		return 0, ErrBusy
	}
	o.generation++
	gen = o.generation
	o.state = Reading
	o.fileName = fileName
	o.err = nil
	o.bundle = nil
	o.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = &ProcessingError{Stage: "ingest", Err: fmt.Errorf("unexpected panic: %v", r)}
			o.fail(gen, err)
		}
	}()

	if err := CheckFileType(fileName); err != nil {
		o.fail(gen, err)
		return gen, err
	}

	data, err := io.ReadAll(content)
	if err != nil {
		ioErr := &IOError{FileName: fileName, Err: err}
		o.fail(gen, ioErr)
		return gen, ioErr
	}

	o.transition(gen, Validating)
	table, err := ParseCSV(string(data))
	if err != nil {
		o.fail(gen, err)
		return gen, err
	}

	if !o.transition(gen, Delegating) {
		return gen, ErrClosed
	}
	o.log.Info().Str("file", fileName).Uint64("generation", gen).Int("records", len(table.Rows)).Msg("delegating analysis")

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if o.timeout > 0 {
		ctx, cancel = context.WithTimeout(o.ctx, o.timeout)
	} else {
		ctx, cancel = context.WithCancel(o.ctx)
	}
	job := jobs.Job{
		ID: fmt.Sprintf("%s-%d", o.id, gen),
		Execute: func() error {
			defer cancel()
			return o.delegate(ctx, gen, fileName, table)
		},
	}
	if err := o.pool.TrySubmit(job); err != nil {
		cancel()
		perr := &ProcessingError{Stage: "delegate", Err: err}
		o.fail(gen, perr)
		return gen, perr
	}
	return gen, nil
}

func (o *Orchestrator) delegate(ctx context.Context, gen uint64, fileName string, table *Table) error {
	result, err := o.analyze(ctx, len(table.Rows))
	if err == nil {
		err = result.Validate()
	}
	if err != nil {
		perr := &ProcessingError{Stage: "analysis", Err: err}
		o.fail(gen, perr)
		return perr
	}

	bundle := &Bundle{
		Records:        table.Rows,
		Headers:        table.Headers,
		Result:         result,
		SourceFileName: fileName,
		CompletedAt:    time.Now().UTC(),
	}
	if !o.complete(gen, bundle) {
		o.log.Debug().Uint64("generation", gen).Msg("discarding stale analysis result")
		return nil
	}

	o.log.Info().Str("file", fileName).Int("records", len(table.Rows)).Int("alerts", len(result.Alerts)).Msg("analysis complete")
	o.publish(gen, *bundle)
	return nil
}

// analyze calls the provider, turning a panic into an error.
func (o *Orchestrator) analyze(ctx context.Context, recordCount int) (result *analysis.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("provider panic: %v", r)
		}
	}()
	return o.provider.Analyze(ctx, recordCount)
}

// publish hands a completed bundle to the OnComplete hook. The bundle is
// already published, so a failing hook is only logged.
func (o *Orchestrator) publish(gen uint64, b Bundle) {
	if o.onComplete == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Uint64("generation", gen).Msgf("completion hook panicked: %v", r)
		}
	}()
	o.onComplete(b)
}

// transition moves the current ingestion to s. It reports false if gen is stale.
func (o *Orchestrator) transition(gen uint64, s State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || gen != o.generation {
		return false
	}
	o.state = s
	return true
}

func (o *Orchestrator) complete(gen uint64, bundle *Bundle) bool {
	o.mu.Lock()
	if o.closed || gen != o.generation {
		o.mu.Unlock()
		return false
	}
	o.state = Complete
	o.bundle = bundle
	o.err = nil
	o.mu.Unlock()

	o.record("complete", len(bundle.Records))
	return true
}

func (o *Orchestrator) fail(gen uint64, err error) {
	o.mu.Lock()
	if o.closed || gen != o.generation {
		o.mu.Unlock()
		return
	}
	o.state = Failed
	o.err = err
	o.bundle = nil
	o.mu.Unlock()

	o.log.Warn().Err(err).Uint64("generation", gen).Msg("ingestion failed")
	o.record(Kind(err), 0)
}

func (o *Orchestrator) record(outcome string, records int) {
	if o.recorder != nil {
		o.recorder.IngestionFinished(outcome, records)
	}
}

// Dismiss clears a failure or a completed result and returns to Idle.
// It has no effect while an ingestion is in flight.
func (o *Orchestrator) Dismiss() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.state.InFlight() {
		return
	}
	o.state = Idle
	o.err = nil
	o.bundle = nil
	o.fileName = ""
}

// Close tears the orchestrator down. A pending provider call is canceled and
// its eventual result is dropped.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.generation++
	o.state = Idle
	o.bundle = nil
	o.err = nil
	o.mu.Unlock()

	o.cancel()
}
