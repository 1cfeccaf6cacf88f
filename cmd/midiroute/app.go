package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/midiflow/router/internal/catalog"
	"github.com/midiflow/router/internal/config"
	"github.com/midiflow/router/internal/eventlog"
	"github.com/midiflow/router/internal/feed"
	"github.com/midiflow/router/internal/port"
	"github.com/midiflow/router/internal/routing"
	"github.com/midiflow/router/internal/session"
	"github.com/midiflow/router/internal/supervisor"
	"github.com/midiflow/router/internal/telemetry"
	"github.com/midiflow/router/internal/types"
	"github.com/midiflow/router/internal/worker"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// app wires every component together for one run of the engine. Other
// commands (routes, endpoints, log) only need a Store or Catalog, built
// directly where they're used, since they never bring the engine up.
type app struct {
	store      *config.Store
	appConfig  *config.AppConfig
	overrides  config.Overrides
	catalog    *catalog.Catalog
	matrix     *routing.Matrix
	index      *routing.Index
	log        *eventlog.Log
	analyzer   *telemetry.Analyzer
	native     *port.NativeProvider
	legacy     *port.LegacyProvider
	session    *session.Session
	worker     *worker.Worker
	supervisor *supervisor.Supervisor
	feed       *feed.Server
	feedServer *http.Server
	routeWatch *config.Watcher
	loopWatch  *config.Watcher
}

func newApp(configDir string, v *viper.Viper, feedAddr string) (*app, error) {
	store := config.NewStore(configDir)

	appCfg, err := store.LoadAppConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	overrides := config.ResolveOverrides(v)

	routes, err := appCfg.ActiveRoutes()
	if err != nil {
		return nil, fmt.Errorf("resolve routes: %w", err)
	}

	hw := port.NewStaticHardwareSource(nil)
	cat := catalog.New(hw, store)

	matrix := routing.NewMatrix()
	matrix.ReplaceAll(routes)
	index := routing.NewIndex()
	index.Rebuild(matrix.Snapshot())
	matrix.OnChanged(func() { index.Rebuild(matrix.Snapshot()) })

	// overrides.LogBufferSize is only nonzero when an operator explicitly
	// set MIDIFLOW_LOGBUFFERSIZE or bound --log-buffer-size; absent that,
	// the persisted AppConfig's value governs.
	logCapacity := overrides.LogBufferSize
	if logCapacity == 0 {
		logCapacity = appCfg.ClampedLogBufferSize()
	}
	msgLog := eventlog.New(logCapacity)

	exporter, err := stdoutmetric.New(stdoutmetric.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("create metrics exporter: %w", err)
	}
	readers := []sdkmetric.Option{sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter))}

	if overrides.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(overrides.OTLPEndpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create otlp metrics exporter: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExporter)))
	}

	meterProvider := sdkmetric.NewMeterProvider(readers...)
	analyzer, err := telemetry.New(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("create telemetry analyzer: %w", err)
	}

	native := port.NewNativeProvider(nil)
	legacy := port.NewLegacyProvider(nil)

	sess := session.New(native, legacy, cat)
	sess.SetDebounce(overrides.Debounce)
	sess.SetSysExMaxBytes(overrides.SysExMaxBytes)

	feedServer := feed.NewServer()

	onForwarded := func(routeID types.RouteId, source, target types.EndpointId, _ time.Time) {
		feedServer.BroadcastRouteForwarded(routeID, source, target)
	}
	w := worker.New(index, sess, msgLog, analyzer, cat, onForwarded)

	sv := supervisor.New(cat, w, sess)

	var httpServer *http.Server
	if feedAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", feedServer.Handler)
		httpServer = &http.Server{Addr: feedAddr, Handler: mux}
	}

	a := &app{
		store:      store,
		appConfig:  appCfg,
		overrides:  overrides,
		catalog:    cat,
		matrix:     matrix,
		index:      index,
		log:        msgLog,
		analyzer:   analyzer,
		native:     native,
		legacy:     legacy,
		session:    sess,
		worker:     w,
		supervisor: sv,
		feed:       feedServer,
		feedServer: httpServer,
	}

	cat.OnChanged(w.InvalidateNames)
	sess.OnInbound(w.Enqueue)
	a.wireEventFeed()

	if err := a.watchConfig(); err != nil {
		return nil, err
	}

	return a, nil
}

// watchConfig starts the fsnotify watchers that give the engine live
// reload: an edit to config.json re-resolves routes into the matrix, and
// an edit to loopbacks.json re-reads the catalog's persisted endpoints,
// without requiring a restart.
func (a *app) watchConfig() error {
	routeWatch, err := config.WatchFile(a.store.ConfigPath, config.DefaultWatchDebounce, func() {
		cfg, err := a.store.LoadAppConfig()
		if err != nil {
			fmt.Println(failStyle.Render("reload config:"), err)
			return
		}
		routes, err := cfg.ActiveRoutes()
		if err != nil {
			fmt.Println(failStyle.Render("reload routes:"), err)
			return
		}
		a.appConfig = cfg
		a.matrix.ReplaceAll(routes)
	})
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	a.routeWatch = routeWatch

	loopWatch, err := config.WatchFile(a.store.LoopbackPath, config.DefaultWatchDebounce, func() {
		if err := a.catalog.Refresh(context.Background()); err != nil {
			fmt.Println(failStyle.Render("reload loopbacks:"), err)
		}
	})
	if err != nil {
		_ = a.routeWatch.Close()
		return fmt.Errorf("watch loopbacks: %w", err)
	}
	a.loopWatch = loopWatch

	return nil
}

// wireEventFeed fans the session's StateChanged and the log's EntryAdded
// and Cleared events out to the websocket feed. RouteForwarded reaches the
// feed separately, through the onForwarded callback newApp hands the
// worker.
func (a *app) wireEventFeed() {
	a.session.OnStateChanged(a.feed.BroadcastStateChanged)
	a.log.OnEntryAdded(a.feed.BroadcastEntryAdded)
	a.log.OnCleared(a.feed.BroadcastCleared)
}

func (a *app) Start(ctx context.Context) error {
	if err := a.supervisor.Start(ctx); err != nil {
		return err
	}
	if a.feedServer != nil {
		go func() {
			if err := a.feedServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Println(failStyle.Render("feed server:"), err)
			}
		}()
	}
	return nil
}

func (a *app) Stop(ctx context.Context) error {
	if a.routeWatch != nil {
		_ = a.routeWatch.Close()
	}
	if a.loopWatch != nil {
		_ = a.loopWatch.Close()
	}
	if a.feedServer != nil {
		_ = a.feedServer.Shutdown(ctx)
	}
	return a.supervisor.Stop(ctx)
}
