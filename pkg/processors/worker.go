package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cuemby/katalog/pkg/changes"
	"github.com/cuemby/katalog/pkg/types"
)

// RunWorkerMain is the entrypoint body for a katalogd-worker process:
// decode one WorkerRequest from r, dispatch it to the Processor
// registered under its plugin id, and encode the WorkerResponse to w.
// It is deliberately one-shot, matching runWorkerSubprocess's "one
// request and one response per process lifetime" contract.
func RunWorkerMain(ctx context.Context, r io.Reader, w io.Writer, procs map[string]Processor) error {
	var req WorkerRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return writeWorkerError(w, fmt.Errorf("decode worker request: %w", err))
	}

	p, ok := procs[req.PluginID]
	if !ok {
		return writeWorkerError(w, fmt.Errorf("worker: unknown plugin id %q", req.PluginID))
	}

	mc := changes.New(req.Asset, req.Loaded)
	mc.Add(req.Staged...)

	result, err := p.Run(ctx, mc)
	if err != nil {
		return writeWorkerError(w, err)
	}

	resp := WorkerResponse{Status: result.Status, Metadata: result.Metadata, Message: result.Message}
	return json.NewEncoder(w).Encode(resp)
}

// writeWorkerError encodes err into the response body rather than
// propagating it as a process exit: runWorkerSubprocess only inspects
// stdout when the subprocess itself exits cleanly, so a failing
// processor must be reported via WorkerResponse.Error, not a nonzero
// exit code.
func writeWorkerError(w io.Writer, err error) error {
	resp := WorkerResponse{Status: types.OpError, Error: err.Error()}
	return json.NewEncoder(w).Encode(resp)
}
