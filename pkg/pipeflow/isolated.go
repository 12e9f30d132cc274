package pipeflow

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/pipeflow/pipeflow/pkg/catalog"
	"github.com/pipeflow/pipeflow/pkg/logging"
	"github.com/pipeflow/pipeflow/pkg/progress"
)

// WorkerEnvVar, when set to "1" in a re-exec'd copy of this binary, tells
// main to call RunWorker instead of its normal command-line handling. The
// same "re-exec self as a hidden worker subcommand" pattern the rest of
// the corpus's supervisor/controller binaries use.
const WorkerEnvVar = "PIPEFLOW_WORKER"

func init() {
	// Concrete master-key types gob must know how to encode/decode behind
	// the `any` interface. Handler implementations that use other key
	// types should extend this with their own init()'s gob.Register call.
	gob.Register("")
	gob.Register(0)
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(true)
}

// workerRequest is one (pipeline, master key) unit of work sent down a
// worker subprocess's stdin.
type workerRequest struct {
	Pipeline  string
	MasterKey any
	Stop      bool // true: no more work is coming, worker should exit
}

// workerResponse is the typed Ok|Stop|Err result spec.md §4.5 mode 3
// requires, read back from a worker subprocess's stdout.
type workerResponse struct {
	Kind    string // "ok", "skip", "stop", "err"
	Message string
}

// RunWorker is the entry point a re-exec'd process calls when
// os.Getenv(WorkerEnvVar) == "1". It decodes workerRequests from r and
// writes workerResponses to w until r is exhausted or a Stop request
// arrives, running each request's item through the named, already
// Plan-able pipeline exactly as the in-process engines do.
//
// Callers (cmd/pipeflow's main) are expected to call this before doing
// anything else whenever the worker env var is set, then exit.
func RunWorker(ctx context.Context, r io.Reader, w io.Writer) error {
	dec := gob.NewDecoder(r)
	enc := gob.NewEncoder(w)

	for {
		var req workerRequest
		if err := dec.Decode(&req); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("pipeflow: worker: decoding request: %w", err)
		}
		if req.Stop {
			return nil
		}

		resp := runWorkerRequest(ctx, req)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("pipeflow: worker: encoding response: %w", err)
		}
	}
}

func runWorkerRequest(ctx context.Context, req workerRequest) workerResponse {
	pl, err := GetPipeline(req.Pipeline)
	if err != nil {
		return workerResponse{Kind: "err", Message: err.Error()}
	}
	if !pl.planned {
		if err := pl.Plan(ctx, PlanOptions{InitHandlers: true}); err != nil {
			return workerResponse{Kind: "err", Message: err.Error()}
		}
	}
	params, err := pl.paramsSnapshot()
	if err != nil {
		return workerResponse{Kind: "err", Message: err.Error()}
	}

	res := pl.runItem(ctx, req.MasterKey, params)
	switch res.Outcome {
	case outcomeDone:
		return workerResponse{Kind: "ok"}
	case outcomeSkipped:
		return workerResponse{Kind: "skip", Message: res.Skip.Message}
	case outcomeStopped:
		return workerResponse{Kind: "stop", Message: res.Stop.Message}
	default:
		return workerResponse{Kind: "err", Message: res.Err.Error()}
	}
}

// isolatedWorker supervises one re-exec'd subprocess: a gob encoder/decoder
// pair wired to its stdin/stdout.
type isolatedWorker struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	enc   *gob.Encoder
	dec   *gob.Decoder
}

func spawnIsolatedWorker() (*isolatedWorker, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("pipeflow: isolated worker: resolving executable: %w", err)
	}

	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), WorkerEnvVar+"=1")
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("pipeflow: isolated worker: start: %w", err)
	}

	return &isolatedWorker{
		cmd:   cmd,
		stdin: stdin,
		enc:   gob.NewEncoder(stdin),
		dec:   gob.NewDecoder(stdout),
	}, nil
}

func (w *isolatedWorker) send(req workerRequest) (workerResponse, error) {
	if err := w.enc.Encode(req); err != nil {
		return workerResponse{}, err
	}
	var resp workerResponse
	if err := w.dec.Decode(&resp); err != nil {
		return workerResponse{}, err
	}
	return resp, nil
}

func (w *isolatedWorker) stop() {
	_ = w.enc.Encode(workerRequest{Stop: true})
	_ = w.stdin.Close()
	_, _ = w.cmd.Process.Wait()
}

func (w *isolatedWorker) kill() {
	_ = w.cmd.Process.Kill()
}

// runIsolatedProcessParallel implements spec.md §4.5 mode 3: each worker
// is a real OS subprocess with its own address space, opening its own
// handlers when it first plans the pipeline (see runWorkerRequest). params
// is accepted for signature symmetry with the other two engines but unused
// here: each worker subprocess re-reads the parameters itself for every
// item it runs.
func (p *Pipeline) runIsolatedProcessParallel(ctx context.Context, master catalog.Handler, _ catalog.FlatParams, workers int, bar *progress.Bar) error {
	log := logging.FromContext(ctx)

	procs := make([]*isolatedWorker, 0, workers)
	for i := 0; i < workers; i++ {
		w, err := spawnIsolatedWorker()
		if err != nil {
			for _, started := range procs {
				started.kill()
			}
			return fmt.Errorf("pipeflow: starting isolated workers: %w", err)
		}
		procs = append(procs, w)
	}
	killAll := func() {
		for _, w := range procs {
			w.kill()
		}
	}
	stopAll := func() {
		for _, w := range procs {
			w.stop()
		}
	}

	keys := make(chan any, workers)
	results := make(chan workerOutcome, workers)
	stopCh := make(chan struct{})
	var stopOnce sync.Once
	requestStop := func() { stopOnce.Do(func() { close(stopCh) }) }

	var wg sync.WaitGroup
	inflightWorkers.WithLabelValues(p.Name).Set(float64(workers))
	defer inflightWorkers.WithLabelValues(p.Name).Set(0)

	for _, w := range procs {
		wg.Add(1)
		go func(w *isolatedWorker) {
			defer wg.Done()
			for key := range keys {
				resp, err := w.send(workerRequest{Pipeline: p.Name, MasterKey: key})
				if err != nil {
					results <- workerOutcome{key: key, result: itemResult{
						Outcome: outcomeFailed,
						Err:     wrapItemError(p.Name, "<isolated-worker>", key, err),
					}}
					return
				}
				results <- workerOutcome{key: key, result: responseToOutcome(p.Name, key, resp)}
			}
		}(w)
	}

	go func() {
		defer close(keys)
		for key := range master.Iterate(ctx) {
			select {
			case <-stopCh:
				return
			case keys <- key:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var final error
	fatal := false
	for out := range results {
		bar.Increment(1)
		switch out.result.Outcome {
		case outcomeSkipped:
			log.Debug("item skipped", "pipeline", p.Name, "master_key", out.key, "message", out.result.Skip.Message)
		case outcomeStopped:
			log.Info("pipeline stopped by item", "pipeline", p.Name, "master_key", out.key, "message", out.result.Stop.Message)
			if final == nil {
				final = out.result.Stop
			}
			requestStop()
		case outcomeFailed:
			if !p.Config.ErrorTolerant {
				if final == nil {
					final = out.result.Err
				}
				fatal = true
				requestStop()
			} else {
				logItemFailure(log, p.Name, out.key, out.result.Err)
			}
		}
	}

	if fatal {
		killAll()
	} else {
		stopAll()
	}
	return final
}

func responseToOutcome(pipeline string, key any, resp workerResponse) itemResult {
	switch resp.Kind {
	case "ok":
		return itemResult{Outcome: outcomeDone}
	case "skip":
		return itemResult{Outcome: outcomeSkipped, Skip: NewSkipItem(key, resp.Message)}
	case "stop":
		return itemResult{Outcome: outcomeStopped, Stop: NewStopPipeline(key, resp.Message)}
	default:
		return itemResult{Outcome: outcomeFailed, Err: wrapItemError(pipeline, "<isolated-worker>", key, fmt.Errorf("%s", resp.Message))}
	}
}
