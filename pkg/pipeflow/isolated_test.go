package pipeflow

import (
	"context"
	"encoding/gob"
	"errors"
	"io"
	"testing"

	"github.com/pipeflow/pipeflow/pkg/catalog"
)

func TestRunWorker_EncodesOkSkipStopOverGob(t *testing.T) {
	resetRegistries()

	master := newMemHandler(map[any]catalog.Item{
		"ok":      {"v": "ok"},
		"skip-me": {"v": "skip-me"},
		"stop-me": {"v": "stop-me"},
	}, []any{"ok", "skip-me", "stop-me"})

	fn := func(args []any) ([]any, error) {
		v := args[0].(map[string]any)["v"]
		switch v {
		case "skip-me":
			return nil, NewSkipItem(v, "nothing to do")
		case "stop-me":
			return nil, NewStopPipeline(v, "halt")
		default:
			return []any{v}, nil
		}
	}
	plannedPipeline(t, "worker_pipeline", master, fn, Config{})

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		defer outW.Close()
		done <- RunWorker(context.Background(), inR, outW)
	}()

	enc := gob.NewEncoder(inW)
	dec := gob.NewDecoder(outR)

	send := func(req workerRequest) workerResponse {
		if err := enc.Encode(req); err != nil {
			t.Fatalf("encoding request: %v", err)
		}
		var resp workerResponse
		if err := dec.Decode(&resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		return resp
	}

	if resp := send(workerRequest{Pipeline: "worker_pipeline", MasterKey: "ok"}); resp.Kind != "ok" {
		t.Errorf("response for a normal key = %+v, want Kind ok", resp)
	}
	if resp := send(workerRequest{Pipeline: "worker_pipeline", MasterKey: "skip-me"}); resp.Kind != "skip" {
		t.Errorf("response for a SkipItem key = %+v, want Kind skip", resp)
	}
	if resp := send(workerRequest{Pipeline: "worker_pipeline", MasterKey: "stop-me"}); resp.Kind != "stop" {
		t.Errorf("response for a StopPipeline key = %+v, want Kind stop", resp)
	}

	if err := enc.Encode(workerRequest{Stop: true}); err != nil {
		t.Fatalf("encoding stop request: %v", err)
	}
	inW.Close()

	if err := <-done; err != nil {
		t.Errorf("RunWorker returned an error: %v", err)
	}
}

func TestRunWorker_UnknownPipelineReturnsErr(t *testing.T) {
	resetRegistries()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		defer outW.Close()
		done <- RunWorker(context.Background(), inR, outW)
	}()

	enc := gob.NewEncoder(inW)
	dec := gob.NewDecoder(outR)

	if err := enc.Encode(workerRequest{Pipeline: "does-not-exist", MasterKey: "k"}); err != nil {
		t.Fatalf("encoding request: %v", err)
	}
	var resp workerResponse
	if err := dec.Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Kind != "err" {
		t.Errorf("response for an unknown pipeline = %+v, want Kind err", resp)
	}

	inW.Close()
	if err := <-done; err != nil && !errors.Is(err, io.EOF) {
		t.Errorf("RunWorker returned an unexpected error: %v", err)
	}
}
