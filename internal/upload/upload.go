// Package upload implements the Pybricks paste-mode upload: interrupt the
// running program, enter paste mode, stream the script in paced chunks,
// then soft-reboot to execute it.
package upload

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/hubload/internal/ble"
	"github.com/chaz8081/hubload/internal/ble/protocol"
	"github.com/chaz8081/hubload/internal/validate"
)

// DefaultFilename is used when no target filename is given.
const DefaultFilename = "main.py"

// Phase is a state of an upload job.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseValidating
	PhaseInterrupting
	PhaseEnteringRawMode
	PhaseTransferring
	PhaseExecuting
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseValidating:
		return "validating"
	case PhaseInterrupting:
		return "interrupting"
	case PhaseEnteringRawMode:
		return "entering raw mode"
	case PhaseTransferring:
		return "transferring"
	case PhaseExecuting:
		return "executing"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Timing holds the firmware timing assumptions of the protocol. They vary
// between firmware revisions, so they are configurable.
type Timing struct {
	// SettleAfterInterrupt is waited after 0x03 before sending 0x05.
	SettleAfterInterrupt time.Duration
	// SettleAfterRawMode is waited after 0x05 so paste mode is ready.
	SettleAfterRawMode time.Duration
	// InterChunk is waited after every payload chunk. The hub's receive
	// buffer overflows with back-to-back writes.
	InterChunk time.Duration
	// ChunkSize is the payload bytes per write.
	ChunkSize int
}

// DefaultTiming returns the timing known to work with Pybricks firmware.
func DefaultTiming() Timing {
	return Timing{
		SettleAfterInterrupt: 100 * time.Millisecond,
		SettleAfterRawMode:   200 * time.Millisecond,
		InterChunk:           18 * time.Millisecond,
		ChunkSize:            protocol.MaxChunkBytes,
	}
}

// Link is the transport an upload writes to. *ble.Session implements it.
type Link interface {
	// Write sends one packet.
	Write(ctx context.Context, p []byte) error
	// Lost is closed when the link goes away.
	Lost() <-chan struct{}
}

var _ Link = (*ble.Session)(nil)

// Event reports a phase change or chunk progress.
type Event struct {
	JobID  string
	Phase  Phase
	Offset int
	Total  int
}

// Options configures an Uploader.
type Options struct {
	Timing Timing
	Policy validate.Policy
	// Observer, if set, is called synchronously for every Event.
	Observer func(Event)
}

// DefaultOptions returns the default timing and validation policy.
func DefaultOptions() Options {
	return Options{
		Timing: DefaultTiming(),
		Policy: validate.DefaultPolicy(),
	}
}

// Result is the outcome of one job. Phase is PhaseDone or PhaseFailed.
type Result struct {
	JobID  string
	Phase  Phase
	Offset int
	Total  int
	Report validate.Report
	// Err is an *Error when Phase is PhaseFailed.
	Err error
}

// OK reports whether the script was sent and executed.
func (r Result) OK() bool {
	return r.Phase == PhaseDone
}

// Kind returns the failure kind, or KindUnknown for a successful job.
func (r Result) Kind() Kind {
	if r.OK() {
		return KindUnknown
	}
	return KindOf(r.Err)
}

// Uploader runs upload jobs one at a time.
type Uploader struct {
	opts Options
	busy atomic.Bool

	mu   sync.Mutex
	last *Result
}

// New creates an Uploader. Zero timing fields keep their zero value, which
// disables the corresponding delay; a zero ChunkSize uses the default.
func New(opts Options) *Uploader {
	if opts.Timing.ChunkSize <= 0 {
		opts.Timing.ChunkSize = protocol.MaxChunkBytes
	}
	return &Uploader{opts: opts}
}

// Busy reports whether a job is running.
func (u *Uploader) Busy() bool {
	return u.busy.Load()
}

// Last returns the result of the most recent job that ran.
func (u *Uploader) Last() (Result, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.last == nil {
		return Result{}, false
	}
	return *u.last, true
}

// Submit validates payload and filename and, if they pass, uploads and
// executes the payload over link. It blocks until the job finishes. A call
// made while another job runs fails immediately with KindBusy.
// No step is retried: the first failure ends the job.
func (u *Uploader) Submit(ctx context.Context, link Link, payload, filename string) Result {
	if !u.busy.CompareAndSwap(false, true) {
		return Result{
			Phase: PhaseFailed,
			Total: len(payload),
			Err:   &Error{Kind: KindBusy, Phase: PhaseIdle, Total: len(payload), Err: ErrBusy},
		}
	}
	defer u.busy.Store(false)

	if filename == "" {
		filename = DefaultFilename
	}
	j := &job{
		id:      uuid.NewString(),
		payload: []byte(payload),
		link:    link,
		opts:    u.opts,
	}
	res := j.run(ctx, filename)

	u.mu.Lock()
	u.last = &res
	u.mu.Unlock()
	return res
}

// job is one upload in flight.
type job struct {
	id      string
	payload []byte
	offset  int
	phase   Phase
	link    Link
	opts    Options
}

func (j *job) run(ctx context.Context, filename string) Result {
	t := j.opts.Timing
	log := slog.With("job", j.id)

	j.enter(PhaseValidating)
	report := j.opts.Policy.ValidateScript(filename, string(j.payload))
	for _, w := range report.Warnings() {
		log.Warn("[UPLOAD] validation warning", "warning", w)
	}
	if !report.Valid() {
		log.Warn("[UPLOAD] validation failed", "errors", report.Errors())
		return j.fail(&Error{
			Kind:   KindValidation,
			Phase:  PhaseValidating,
			Total:  len(j.payload),
			Report: report,
			Err:    ErrValidation,
		}, report)
	}

	log.Info("[UPLOAD] starting", "file", filename, "bytes", len(j.payload),
		"chunks", protocol.ChunkCount(len(j.payload), t.ChunkSize))

	j.enter(PhaseInterrupting)
	if err := j.send(ctx, protocol.Interrupt.Packet()); err != nil {
		return j.abort(err, report)
	}

	j.enter(PhaseEnteringRawMode)
	if err := j.wait(ctx, t.SettleAfterInterrupt); err != nil {
		return j.abort(err, report)
	}
	if err := j.send(ctx, protocol.PasteMode.Packet()); err != nil {
		return j.abort(err, report)
	}

	j.enter(PhaseTransferring)
	if err := j.wait(ctx, t.SettleAfterRawMode); err != nil {
		return j.abort(err, report)
	}
	for _, chunk := range protocol.Chunk(j.payload, t.ChunkSize) {
		if err := j.send(ctx, chunk); err != nil {
			return j.abort(err, report)
		}
		j.offset += len(chunk)
		j.notify()
		if err := j.wait(ctx, t.InterChunk); err != nil {
			return j.abort(err, report)
		}
	}

	j.enter(PhaseExecuting)
	if err := j.send(ctx, protocol.SoftReboot.Packet()); err != nil {
		return j.abort(err, report)
	}

	j.enter(PhaseDone)
	log.Info("[UPLOAD] complete", "bytes", j.offset)
	return Result{
		JobID:  j.id,
		Phase:  PhaseDone,
		Offset: j.offset,
		Total:  len(j.payload),
		Report: report,
	}
}

func (j *job) enter(p Phase) {
	j.phase = p
	j.notify()
}

func (j *job) notify() {
	if j.opts.Observer != nil {
		j.opts.Observer(Event{JobID: j.id, Phase: j.phase, Offset: j.offset, Total: len(j.payload)})
	}
}

func (j *job) send(ctx context.Context, p []byte) error {
	return j.link.Write(ctx, p)
}

// wait sleeps for d unless the link drops or ctx ends first.
func (j *job) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-j.link.Lost():
			return ble.ErrLinkLost
		default:
			return ctx.Err()
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-j.link.Lost():
		return ble.ErrLinkLost
	case <-ctx.Done():
		return ctx.Err()
	}
}

// abort ends the job on a transport failure.
func (j *job) abort(err error, report validate.Report) Result {
	kind := KindOf(err)
	if kind == KindUnknown {
		kind = KindWriteFailed
	}
	slog.Error("[UPLOAD] failed", "job", j.id, "kind", kind, "phase", j.phase,
		"offset", j.offset, "total", len(j.payload), "error", err)
	return j.fail(&Error{
		Kind:   kind,
		Phase:  j.phase,
		Offset: j.offset,
		Total:  len(j.payload),
		Err:    err,
	}, report)
}

func (j *job) fail(e *Error, report validate.Report) Result {
	e.Phase = j.phase
	j.phase = PhaseFailed
	j.notify()
	return Result{
		JobID:  j.id,
		Phase:  PhaseFailed,
		Offset: j.offset,
		Total:  len(j.payload),
		Report: report,
		Err:    e,
	}
}
