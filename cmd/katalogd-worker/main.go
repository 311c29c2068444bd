// Command katalogd-worker is the execution_mode="cpu" processor
// worker: katalogd-worker run reads one WorkerRequest as JSON on
// stdin, runs the named processor against it, and writes one
// WorkerResponse as JSON on stdout. It is spawned once per invocation
// by pkg/processors, never run as a long-lived server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/katalog/pkg/config"
	"github.com/cuemby/katalog/pkg/plugin"
	"github.com/cuemby/katalog/pkg/processors"
	"github.com/cuemby/katalog/pkg/processors/md5hash"
	"github.com/cuemby/katalog/pkg/registry"
	"github.com/cuemby/katalog/pkg/sources/fakeassets"
	"github.com/cuemby/katalog/pkg/store"
	"github.com/cuemby/katalog/pkg/store/blobcache"
)

var configPath = flag.String("config", "", "Path to the katalogd YAML config file")

func main() {
	flag.Parse()
	if flag.NArg() != 1 || flag.Arg(0) != "run" {
		fmt.Fprintln(os.Stderr, "usage: katalogd-worker [-config path] run")
		os.Exit(2)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "katalogd-worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DataDir + "/katalog.db")
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	cache, err := blobcache.Open(cfg.DataDir, 10*time.Minute)
	if err != nil {
		return fmt.Errorf("open blobcache: %w", err)
	}
	defer cache.Close()

	reg := registry.New()
	reg.DefineCore()
	fakeassets.DefineKeys(reg)
	md5hash.DefineKeys(reg)
	if err := reg.Sync(st); err != nil {
		return fmt.Errorf("sync registry: %w", err)
	}

	// The worker needs to resolve an asset's origin source (e.g. the
	// fake.assets actor) to obtain its DataReader, not just its own
	// processor actor, so every source plugin the daemon can scan with
	// must also be registered here.
	plugins := plugin.NewRegistry()
	plugins.Register(fakeassets.PluginID, fakeassets.NewFactory(reg, st, cache))
	plugins.Register(md5hash.PluginID, md5hash.NewFactory(reg, st, plugins))

	actorID, err := resolveActorID(st, md5hash.PluginID)
	if err != nil {
		return err
	}
	md5Proc, err := md5hash.New(reg, actorID, st, plugins)
	if err != nil {
		return fmt.Errorf("construct %s: %w", md5hash.PluginID, err)
	}

	procs := map[string]processors.Processor{
		md5hash.PluginID: md5Proc,
	}

	return processors.RunWorkerMain(context.Background(), os.Stdin, os.Stdout, procs)
}

// resolveActorID finds the registered processor actor for pluginID so
// the worker can stamp its output metadata with the right actor id.
// A worker process has no actor context of its own: the orchestrator
// only tells it which plugin to run, not which configured instance.
func resolveActorID(st store.Store, pluginID string) (int64, error) {
	actors, err := st.ListActors("")
	if err != nil {
		return 0, fmt.Errorf("list actors: %w", err)
	}
	for _, a := range actors {
		if a.PluginID == pluginID {
			return a.ID, nil
		}
	}
	return 0, fmt.Errorf("no actor registered for plugin %q", pluginID)
}
