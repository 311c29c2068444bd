package processors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/cuemby/katalog/pkg/changes"
	"github.com/cuemby/katalog/pkg/types"
)

// WorkerRequest is the JSON payload sent to a katalogd-worker process
// over stdin for a single execution_mode="cpu" processor invocation.
// There is no protoc/grpc codegen available in this environment, so
// the wire format is plain JSON over a pipe, one request and one
// response per process lifetime.
type WorkerRequest struct {
	PluginID string            `json:"plugin_id"`
	Asset    *types.Asset      `json:"asset"`
	Loaded   []*types.Metadata `json:"loaded"`
	Staged   []*types.Metadata `json:"staged"`
}

// WorkerResponse is the JSON payload a katalogd-worker process writes
// to stdout after running the processor named by the WorkerRequest.
type WorkerResponse struct {
	Status   types.OpStatus    `json:"status"`
	Metadata []*types.Metadata `json:"metadata,omitempty"`
	Message  string            `json:"message,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// runWorkerSubprocess launches workerBin, feeds it a JSON request on
// stdin, and parses its single JSON response from stdout. killGrace
// bounds how long the subprocess is given to exit after the context
// is cancelled before it is force-killed.
func runWorkerSubprocess(ctx context.Context, workerBin string, killGrace time.Duration, pluginID string, mc *changes.MetadataChanges) (*types.ProcessorResult, error) {
	if workerBin == "" {
		return nil, fmt.Errorf("no worker binary configured for cpu-mode processor %s", pluginID)
	}

	req := WorkerRequest{
		PluginID: pluginID,
		Asset:    mc.Asset,
		Loaded:   mc.Loaded,
		Staged:   mc.Staged(),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal worker request: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, workerBin, "run")
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = killGrace
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("worker exited: %w: %s", err, stderr.String())
		}
	case <-ctx.Done():
		// cmd.Cancel sends SIGTERM; Wait kills the process once
		// WaitDelay (killGrace) has elapsed without it exiting.
		<-done
		return nil, ctx.Err()
	}

	var resp WorkerResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode worker response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("worker reported error: %s", resp.Error)
	}

	return &types.ProcessorResult{
		Status:   resp.Status,
		Metadata: resp.Metadata,
		Message:  resp.Message,
	}, nil
}
