package edm

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
)

// IOSink receives human-readable progress output from the driver. The
// caller owns it; the core never writes anywhere else.
type IOSink interface {
	Print(s string)
	Flush()
}

// CancelProbe is polled by workers between query rows and between thetas.
// Returning true stops the run; outstanding tasks are abandoned and
// untouched output cells keep their zero values.
type CancelProbe interface {
	ShouldStop() bool
}

// ConsoleSink writes progress to standard output.
type ConsoleSink struct{}

// Print writes s to stdout.
func (ConsoleSink) Print(s string) { fmt.Fprint(os.Stdout, s) }

// Flush is a no-op for the console.
func (ConsoleSink) Flush() {}

// Prediction aggregates one run's outputs: per-theta, per-query predictions
// and return codes, optional S-map coefficient rows, and summary statistics
// against the query targets.
type Prediction struct {
	// Ystar holds the predicted target, indexed [theta][query]. Slots
	// that could not be produced hold the Missing sentinel; slots
	// abandoned by cancellation hold zero.
	Ystar [][]float64

	// RC holds the per-slot return code, indexed [theta][query].
	RC [][]RetCode

	// Coeffs holds the fitted S-map coefficient rows, indexed
	// [theta][query][coefficient]; nil unless SaveCoefficients was set.
	// Row layout is intercept first, then one coefficient per manifold
	// column.
	Coeffs [][][]float64

	NumThetas      int
	NumPredictions int
	NumCoeffCols   int

	// Rho and MAE compare the last theta's predictions against the query
	// targets over slots where both are present. HasStats reports
	// whether any such pair existed; it is false for a cancelled run,
	// whose statistics are not computed.
	Rho      float64
	MAE      float64
	HasStats bool

	// WorstRC is the most severe code across every slot. A run stopped
	// early reports Cancelled unless a more severe code (UnknownError)
	// was already seen.
	WorstRC RetCode
}

// Handle is the future for an in-flight run launched with Launch.
type Handle struct {
	done chan struct{}
	pred *Prediction
	err  error
}

// Wait blocks until the run finishes and returns its outcome.
func (h *Handle) Wait() (*Prediction, error) {
	<-h.done
	return h.pred, h.err
}

// Done returns a channel closed when the run finishes.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Scheduler distributes independent per-query tasks across workers. Tasks
// are pure over shared immutable inputs and write disjoint output slots, so
// implementations need no locking beyond their own bookkeeping.
type Scheduler interface {
	Run(numTasks int, task func(i int))
}

// SequentialScheduler runs every task on the calling goroutine, in order.
// Useful for tests and for callers already inside an outer parallel region.
type SequentialScheduler struct{}

// Run executes the tasks one by one.
func (SequentialScheduler) Run(numTasks int, task func(i int)) {
	for i := 0; i < numTasks; i++ {
		task(i)
	}
}

// PoolScheduler fans tasks out to a bounded worker pool. One goroutine per
// query row would be wasteful for large runs; the pool keeps the worker
// count fixed and lets workers pull work as they finish.
type PoolScheduler struct {
	Workers int
}

// Run executes the tasks across the pool and returns after all of them
// finish or are drained.
func (p PoolScheduler) Run(numTasks int, task func(i int)) {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > numTasks {
		workers = numTasks
	}

	queue := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range queue {
				task(i)
			}
		}()
	}
	for i := 0; i < numTasks; i++ {
		queue <- i
	}
	close(queue)
	wg.Wait()
}

// runState bundles the shared immutable inputs of one run plus the
// cancellation flag workers poll.
type runState struct {
	opts    *Options
	m       *Manifold
	mp      *Manifold
	k       int
	libInds []int

	ctx       context.Context
	probe     CancelProbe
	cancelled atomic.Bool
}

// stopRequested polls the context and the probe, latching the result so
// every worker observes the stop at its next check.
func (rs *runState) stopRequested() bool {
	if rs.cancelled.Load() {
		return true
	}
	if rs.ctx != nil {
		select {
		case <-rs.ctx.Done():
			rs.cancelled.Store(true)
			return true
		default:
		}
	}
	if rs.probe != nil && rs.probe.ShouldStop() {
		rs.cancelled.Store(true)
		return true
	}
	return false
}

// commit writes one query's fully computed slots into the shared buffers.
func (rs *runState) commit(q int, pred *Prediction, ys []float64, rcs []RetCode, coeffs [][]float64) {
	for ti := range ys {
		pred.Ystar[ti][q] = ys[ti]
		pred.RC[ti][q] = rcs[ti]
		if coeffs != nil && coeffs[ti] != nil {
			copy(pred.Coeffs[ti][q], coeffs[ti])
		}
	}
}

// ResolveThreads clamps a requested worker count the way the original host
// did: non-positive requests default to the physical core estimate, and
// nothing may exceed the logical core count.
func ResolveThreads(requested int) int {
	logical := runtime.NumCPU()
	physical := logical / 2
	if physical < 1 {
		physical = 1
	}
	n := requested
	if n <= 0 {
		n = physical
	}
	if n > logical {
		n = logical
	}
	return n
}

// Launch starts a run asynchronously and returns a handle the host can poll
// or await.
func Launch(ctx context.Context, opts Options, gen *ManifoldGenerator, trainingFilter, predictionFilter []bool, sink IOSink, probe CancelProbe) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.pred, h.err = Run(ctx, opts, gen, trainingFilter, predictionFilter, sink, probe)
	}()
	return h
}

// Run materializes the library and query manifolds, executes one
// independent prediction task per query row in parallel, and reduces the
// outcome. Programmer errors (invalid options, mismatched filters) abort
// before any work begins; per-row causes are folded into the worst return
// code instead.
func Run(ctx context.Context, opts Options, gen *ManifoldGenerator, trainingFilter, predictionFilter []bool, sink IOSink, probe CancelProbe) (*Prediction, error) {
	return RunWithScheduler(ctx, opts, gen, trainingFilter, predictionFilter, sink, probe, nil)
}

// RunWithScheduler is Run with an explicit scheduler. Callers already
// inside an outer parallel region pass a SequentialScheduler (or a pool
// sized to their share of the thread budget) to avoid oversubscription; a
// nil scheduler picks one from the resolved thread count.
func RunWithScheduler(ctx context.Context, opts Options, gen *ManifoldGenerator, trainingFilter, predictionFilter []bool, sink IOSink, probe CancelProbe, sched Scheduler) (*Prediction, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.PanelMode && !gen.PanelMode() {
		return nil, ErrMissingPanelIDs
	}

	m, err := gen.Create(opts.E, trainingFilter, false)
	if err != nil {
		return nil, err
	}
	mp, err := gen.Create(opts.E, predictionFilter, true)
	if err != nil {
		return nil, err
	}

	k := opts.K
	if k == 0 {
		k = m.EActual() + 1
	}

	numThetas := len(opts.Thetas)
	numPred := mp.NObs()
	numCoeffs := 0
	if opts.SaveCoefficients {
		numCoeffs = m.EActual() + 1
	}

	pred := &Prediction{
		Ystar:          makeMatrix(numThetas, numPred),
		RC:             make([][]RetCode, numThetas),
		NumThetas:      numThetas,
		NumPredictions: numPred,
		NumCoeffCols:   numCoeffs,
	}
	for ti := range pred.RC {
		pred.RC[ti] = make([]RetCode, numPred)
	}
	if opts.SaveCoefficients {
		pred.Coeffs = make([][][]float64, numThetas)
		for ti := range pred.Coeffs {
			pred.Coeffs[ti] = makeMatrix(numPred, numCoeffs)
		}
	}

	rs := &runState{
		opts:    &opts,
		m:       m,
		mp:      mp,
		k:       k,
		libInds: sequence(m.NObs()),
		ctx:     ctx,
		probe:   probe,
	}

	threads := ResolveThreads(opts.NumThreads)
	if sink != nil && opts.Verbosity > 0 {
		sink.Print(fmt.Sprintf("edm: %s over %d library and %d query points (E_actual=%d, k=%d, %d thetas, %d threads)\n",
			opts.Algorithm, m.NObs(), numPred, m.EActual(), k, numThetas, threads))
		sink.Flush()
	}

	if sched == nil {
		if threads == 1 {
			sched = SequentialScheduler{}
		} else {
			sched = PoolScheduler{Workers: threads}
		}
	}

	taskRCs := make([]RetCode, numPred)
	sched.Run(numPred, func(q int) {
		if rs.stopRequested() {
			taskRCs[q] = Cancelled
			return
		}
		taskRCs[q] = rs.predictSingle(q, pred)
	})

	worst := Success
	for _, rc := range taskRCs {
		worst = worstRetCode(worst, rc)
	}
	if rs.cancelled.Load() {
		worst = worstRetCode(worst, Cancelled)
	} else {
		lastTheta := numThetas - 1
		rho, mae, n := pearsonAndMAE(pred.Ystar[lastTheta], mp.YVec())
		if n > 0 {
			pred.Rho, pred.MAE, pred.HasStats = rho, mae, true
		}
	}
	pred.WorstRC = worst

	if sink != nil && opts.Verbosity > 0 {
		if pred.HasStats {
			sink.Print(fmt.Sprintf("edm: finished with rc=%s rho=%.6f mae=%.6f\n", worst, pred.Rho, pred.MAE))
		} else {
			sink.Print(fmt.Sprintf("edm: finished with rc=%s\n", worst))
		}
		sink.Flush()
	}

	return pred, nil
}

func makeMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

func sequence(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}
