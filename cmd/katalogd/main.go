package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cuemby/katalog/pkg/changeset"
	"github.com/cuemby/katalog/pkg/collections"
	"github.com/cuemby/katalog/pkg/config"
	"github.com/cuemby/katalog/pkg/events"
	"github.com/cuemby/katalog/pkg/log"
	"github.com/cuemby/katalog/pkg/metrics"
	"github.com/cuemby/katalog/pkg/plugin"
	"github.com/cuemby/katalog/pkg/processors"
	"github.com/cuemby/katalog/pkg/processors/md5hash"
	"github.com/cuemby/katalog/pkg/query"
	"github.com/cuemby/katalog/pkg/registry"
	"github.com/cuemby/katalog/pkg/scan"
	"github.com/cuemby/katalog/pkg/sources/fakeassets"
	"github.com/cuemby/katalog/pkg/store"
	"github.com/cuemby/katalog/pkg/store/blobcache"
	"github.com/cuemby/katalog/pkg/types"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "katalogd",
	Short: "Katalog - a metadata catalog engine",
	Long: `Katalog scans asset sources, tracks their metadata over
versioned changesets, and serves the resulting catalog for querying,
delivered as a single binary.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"katalogd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(changesetCmd)
	rootCmd.AddCommand(actorCmd)
	rootCmd.AddCommand(collectionCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// App bundles the collaborators every subcommand needs once the
// catalog is open: the persistent store, the synced metadata
// registry, the plugin registry and the actors configured for it.
type App struct {
	Store   store.Store
	Cache   *blobcache.Cache
	Reg     *registry.Registry
	Plugins *plugin.Registry
	Actors  []*types.Actor
	Runtime *processors.Runtime
	Stages  [][]processors.Processor
}

// Close tears down the store and its read cache.
func (a *App) Close() {
	if a.Cache != nil {
		a.Cache.Stop()
		a.Cache.Close()
	}
	a.Store.Close()
}

// bootstrap opens the store and read cache, builds the metadata key
// registry and the plugin registry, and registers every actor
// declared in cfg. It is shared by every subcommand that needs a live
// catalog.
func bootstrap(cfg config.Config) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.Open(cfg.DataDir + "/katalog.db")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	cache, err := blobcache.Open(cfg.DataDir, 10*time.Minute)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open blobcache: %w", err)
	}
	cache.Start()

	reg := registry.New()
	reg.DefineCore()
	fakeassets.DefineKeys(reg)
	md5hash.DefineKeys(reg)
	if err := reg.Sync(st); err != nil {
		cache.Stop()
		cache.Close()
		st.Close()
		return nil, fmt.Errorf("sync registry: %w", err)
	}

	plugins := plugin.NewRegistry()
	plugins.Register(fakeassets.PluginID, fakeassets.NewFactory(reg, st, cache))
	plugins.Register(md5hash.PluginID, md5hash.NewFactory(reg, st, plugins))

	var actors []*types.Actor
	for _, ac := range cfg.Actors {
		actor := &types.Actor{
			Name:        ac.Name,
			PluginID:    ac.PluginID,
			Type:        ac.ActorType(),
			IdentityKey: ac.IdentityKey,
			Disabled:    ac.Disabled,
			Config:      ac.Config,
		}
		if err := st.CreateActor(actor); err != nil {
			cache.Stop()
			cache.Close()
			st.Close()
			return nil, fmt.Errorf("register actor %s: %w", ac.Name, err)
		}
		actors = append(actors, actor)
	}

	var procs []processors.Processor
	for _, actor := range actors {
		if actor.Disabled || actor.Type != types.ActorTypeProcessor {
			continue
		}
		inst, err := plugins.GetActorInstance(actor)
		if err != nil {
			cache.Stop()
			cache.Close()
			st.Close()
			return nil, fmt.Errorf("resolve processor actor %s: %w", actor.Name, err)
		}
		p, ok := inst.(processors.Processor)
		if !ok {
			cache.Stop()
			cache.Close()
			st.Close()
			return nil, fmt.Errorf("actor %s's plugin does not implement processors.Processor", actor.Name)
		}
		procs = append(procs, p)
	}

	stages, err := processors.SortProcessors(procs)
	if err != nil {
		cache.Stop()
		cache.Close()
		st.Close()
		return nil, fmt.Errorf("sort processors: %w", err)
	}

	rt := processors.NewRuntime(cfg.ThreadPoolSize, cfg.ProcessPoolSize, cfg.WorkerBin)

	return &App{Store: st, Cache: cache, Reg: reg, Plugins: plugins, Actors: actors, Runtime: rt, Stages: stages}, nil
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a changeset, scanning every configured source",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := rootCmd.PersistentFlags().GetString("config")
		message, _ := cmd.Flags().GetString("message")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		app, err := bootstrap(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()
		mgr := changeset.NewManager(app.Store, broker)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		actorIDs := make([]int64, 0, len(app.Actors))
		for _, a := range app.Actors {
			actorIDs = append(actorIDs, a.ID)
		}

		run, err := mgr.Begin(ctx, actorIDs, message)
		if err != nil {
			return fmt.Errorf("begin changeset: %w", err)
		}

		var runStatus types.OpStatus
		mgr.StartOperation(ctx, run, func(ctx context.Context) error {
			deps := scan.Deps{Store: app.Store, Registry: app.Reg, Plugins: app.Plugins}
			opts := scan.Options{RunProcessors: len(app.Stages) > 0, Stages: app.Stages, Runtime: app.Runtime}
			status, err := scan.RunSources(ctx, deps, run, app.Actors, opts)
			runStatus = status
			return err
		})
		<-run.Done()

		if len(app.Actors) > 0 {
			if err := collections.RefreshLive(app.Store, app.Reg, app.Actors[0].ID, run.Changeset.ID); err != nil {
				log.WithComponent("scan").Error().Err(err).Msg("refresh live collections")
			}
		}

		fmt.Printf("changeset %d: %s (status=%s)\n", run.Changeset.ID, run.Changeset.Status, runStatus)
		fmt.Printf("assets seen=%d lost=%d ignored=%d\n", run.Stats.AssetsSeen, run.Stats.AssetsLost, run.Stats.AssetsIgnored)
		return nil
	},
}

func init() {
	scanCmd.Flags().String("message", "", "Message recorded against the changeset")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve Prometheus metrics and the query API",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := rootCmd.PersistentFlags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		app, err := bootstrap(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

		querySrv := &http.Server{Addr: cfg.QueryAddr, Handler: query.NewServer(app.Store, app.Reg)}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 2)
		go func() {
			log.WithComponent("serve").Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
			errCh <- metricsSrv.ListenAndServe()
		}()
		go func() {
			log.WithComponent("serve").Info().Str("addr", cfg.QueryAddr).Msg("query api listening")
			errCh <- querySrv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
			return querySrv.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		}
	},
}

var actorCmd = &cobra.Command{
	Use:   "actor",
	Short: "Manage actors registered for scanning",
}

var actorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List actors registered for scanning",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := rootCmd.PersistentFlags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		app, err := bootstrap(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		if len(app.Actors) == 0 {
			fmt.Println("no actors configured")
			return nil
		}
		fmt.Printf("%-6s %-20s %-16s %-10s %s\n", "ID", "NAME", "PLUGIN", "TYPE", "DISABLED")
		for _, a := range app.Actors {
			fmt.Printf("%-6d %-20s %-16s %-10s %v\n", a.ID, a.Name, a.PluginID, a.Type, a.Disabled)
		}
		return nil
	},
}

func init() {
	actorCmd.AddCommand(actorListCmd)
}

var changesetCmd = &cobra.Command{
	Use:   "changeset",
	Short: "Manage changesets",
}

var changesetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent changesets",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := rootCmd.PersistentFlags().GetString("config")
		limit, _ := cmd.Flags().GetInt("limit")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		app, err := bootstrap(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		sets, err := app.Store.ListChangesets(limit)
		if err != nil {
			return fmt.Errorf("list changesets: %w", err)
		}
		if len(sets) == 0 {
			fmt.Println("no changesets recorded")
			return nil
		}
		fmt.Printf("%-14s %-12s %-10s %s\n", "ID", "STATUS", "MS", "MESSAGE")
		for _, cs := range sets {
			fmt.Printf("%-14d %-12s %-10d %s\n", cs.ID, cs.Status, cs.RunningTimeMS, cs.Message)
		}
		return nil
	},
}

var changesetShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one changeset's status and recorded data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := rootCmd.PersistentFlags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid changeset id %q: %w", args[0], err)
		}

		app, err := bootstrap(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		cs, err := app.Store.GetChangeset(id)
		if err != nil {
			return fmt.Errorf("get changeset %d: %w", id, err)
		}
		fmt.Printf("id:       %d\n", cs.ID)
		fmt.Printf("status:   %s\n", cs.Status)
		fmt.Printf("message:  %s\n", cs.Message)
		fmt.Printf("duration: %dms\n", cs.RunningTimeMS)
		fmt.Printf("actors:   %v\n", cs.ActorIDs)
		fmt.Printf("data:     %v\n", cs.Data)
		return nil
	},
}

func init() {
	changesetListCmd.Flags().Int("limit", 20, "Maximum number of changesets to list")
	changesetCmd.AddCommand(changesetListCmd)
	changesetCmd.AddCommand(changesetShowCmd)
}

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage asset collections",
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List asset collections",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := rootCmd.PersistentFlags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		app, err := bootstrap(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		all, err := app.Store.ListCollections()
		if err != nil {
			return fmt.Errorf("list collections: %w", err)
		}
		if len(all) == 0 {
			fmt.Println("no collections defined")
			return nil
		}
		fmt.Printf("%-6s %-20s %-10s %-10s %s\n", "ID", "NAME", "COUNT", "REFRESH", "DESCRIPTION")
		for _, c := range all {
			fmt.Printf("%-6d %-20s %-10d %-10s %s\n", c.ID, c.Name, c.AssetCount, c.RefreshMode, c.Description)
		}
		return nil
	},
}

var collectionRefreshCmd = &cobra.Command{
	Use:   "refresh <name>",
	Short: "Re-evaluate an on_demand collection's stored query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := rootCmd.PersistentFlags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		app, err := bootstrap(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		all, err := app.Store.ListCollections()
		if err != nil {
			return fmt.Errorf("list collections: %w", err)
		}
		var target *types.AssetCollection
		for _, c := range all {
			if c.Name == args[0] {
				target = c
				break
			}
		}
		if target == nil {
			return fmt.Errorf("no collection named %q", args[0])
		}
		if len(app.Actors) == 0 {
			return fmt.Errorf("refresh requires at least one configured actor for attribution")
		}

		broker := events.NewBroker()
		mgr := changeset.NewManager(app.Store, broker)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		run, err := mgr.Begin(ctx, []int64{app.Actors[0].ID}, fmt.Sprintf("refresh collection %s", target.Name))
		if err != nil {
			return fmt.Errorf("begin changeset: %w", err)
		}

		var count int
		mgr.StartOperation(ctx, run, func(ctx context.Context) error {
			var opErr error
			count, opErr = collections.Refresh(app.Store, app.Reg, target, app.Actors[0].ID, run.Changeset.ID)
			return opErr
		})
		<-run.Done()

		if run.Changeset.Status != types.ChangesetCompleted {
			return fmt.Errorf("refresh collection %q: changeset %s: %s", target.Name, run.Changeset.Status, run.Changeset.Message)
		}
		fmt.Printf("collection %q: %d members\n", target.Name, count)
		return nil
	},
}

func init() {
	collectionCmd.AddCommand(collectionListCmd)
	collectionCmd.AddCommand(collectionRefreshCmd)
}
