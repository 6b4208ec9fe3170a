package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/najoast/socialshard/access"
	"github.com/najoast/socialshard/config"
	"github.com/najoast/socialshard/core"
	"github.com/najoast/socialshard/individualuser"
	"github.com/najoast/socialshard/logger"
	"github.com/najoast/socialshard/metrics"
	"github.com/najoast/socialshard/postcache"
	"github.com/najoast/socialshard/ranking"
	"github.com/najoast/socialshard/store"
	"github.com/najoast/socialshard/userindex"
)

// Principals the node itself acts as.
const (
	// SystemPrincipal registers users at the user index.
	SystemPrincipal core.Identity = "system:bootstrap"

	// SchedulerPrincipal triggers the periodic broadcasts.
	SchedulerPrincipal core.Identity = "system:scheduler"
)

// Container keys.
const (
	KeyConfig      = "config"
	KeyMetrics     = "metrics"
	KeyStore       = "store"
	KeyActorSystem = "actor-system"
	KeyUserIndex   = "user-index"
	KeyPostCache   = "post-cache"
)

// ErrNotRunning is returned by operations that need a started application.
var ErrNotRunning = errors.New("application is not running")

// DefaultApplication implements the Application interface
type DefaultApplication struct {
	config *config.Config

	// container provides dependency injection
	container *DefaultContainer

	// lifecycleManager manages service lifecycles
	lifecycleManager *DefaultLifecycleManager

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// Set by the services as they start
	slots       store.Store
	actorSystem core.ActorSystem

	broadcaster *BroadcasterService
	monitor     *MonitorService

	// mutex protects concurrent access
	mutex sync.RWMutex

	// running indicates if the application is running
	running bool

	// shutdownChan for graceful shutdown
	shutdownChan chan os.Signal
}

// NewApplication creates an application with its core services registered.
func NewApplication() *DefaultApplication {
	registry := metrics.NewRegistry()
	app := &DefaultApplication{
		container:        NewContainer(),
		lifecycleManager: NewLifecycleManager(),
		registry:         registry,
		metrics:          metrics.New(registry),
		shutdownChan:     make(chan os.Signal, 1),
	}
	app.broadcaster = &BroadcasterService{app: app}
	app.monitor = &MonitorService{app: app}

	app.container.Set(KeyMetrics, app.metrics)
	app.registerCoreServices()
	app.lifecycleManager.AddListener(func(e LifecycleEvent) {
		if e.Error != nil {
			logger.Warn("lifecycle", "event", e.Type, logger.KeyService, e.Service, logger.Err(e.Error))
			return
		}
		logger.Debug("lifecycle", "event", e.Type, logger.KeyService, e.Service)
	})
	return app
}

// registerCoreServices registers the services every node runs
func (app *DefaultApplication) registerCoreServices() {
	lm := app.lifecycleManager
	_ = lm.Register(KeyStore, &StoreService{app: app})
	_ = lm.Register(KeyActorSystem, &ActorSystemService{app: app}, KeyStore)
	_ = lm.Register("canisters", &CanisterService{app: app}, KeyActorSystem)
	_ = lm.Register("ranking-broadcaster", app.broadcaster, "canisters")
	_ = lm.Register("monitor", app.monitor, KeyActorSystem)
}

// Configure installs cfg and initializes the logger from it.
func (app *DefaultApplication) Configure(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	app.mutex.Lock()
	defer app.mutex.Unlock()

	if app.running {
		return fmt.Errorf("cannot configure application while running")
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level.String(),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}); err != nil {
		return err
	}

	app.config = cfg
	app.container.Set(KeyConfig, cfg)
	return nil
}

// Config returns the installed configuration.
func (app *DefaultApplication) Config() *config.Config {
	app.mutex.RLock()
	defer app.mutex.RUnlock()
	return app.config
}

// Start starts every service in dependency order.
func (app *DefaultApplication) Start(ctx context.Context) error {
	app.mutex.Lock()
	if app.running {
		app.mutex.Unlock()
		return fmt.Errorf("application is already running")
	}
	if app.config == nil {
		app.mutex.Unlock()
		return fmt.Errorf("application is not configured")
	}
	app.running = true
	app.mutex.Unlock()

	if err := app.lifecycleManager.Start(ctx); err != nil {
		app.mutex.Lock()
		app.running = false
		app.mutex.Unlock()
		return fmt.Errorf("failed to start services: %w", err)
	}

	logger.Info("application started", "name", app.config.App.Name, "version", app.config.App.Version)
	return nil
}

// Run runs the application until shutdown
func (app *DefaultApplication) Run(ctx context.Context) error {
	if err := app.Start(ctx); err != nil {
		return err
	}

	signal.Notify(app.shutdownChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(app.shutdownChan)

	select {
	case sig := <-app.shutdownChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	return app.Shutdown(context.Background())
}

// Shutdown shuts down the application gracefully
func (app *DefaultApplication) Shutdown(ctx context.Context) error {
	app.mutex.Lock()
	if !app.running {
		app.mutex.Unlock()
		return nil
	}
	app.running = false
	timeout := app.config.Actor.ShutdownTimeout
	app.mutex.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := app.lifecycleManager.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop services: %w", err)
	}
	logger.Info("application stopped")
	return nil
}

// Container returns the dependency injection container
func (app *DefaultApplication) Container() Container {
	return app.container
}

// LifecycleManager returns the lifecycle manager
func (app *DefaultApplication) LifecycleManager() LifecycleManager {
	return app.lifecycleManager
}

// ActorSystem returns the running actor system
func (app *DefaultApplication) ActorSystem() core.ActorSystem {
	app.mutex.RLock()
	defer app.mutex.RUnlock()
	return app.actorSystem
}

// Registry returns the Prometheus registry the node reports to.
func (app *DefaultApplication) Registry() *prometheus.Registry {
	return app.registry
}

// MonitorAddr returns the address the monitoring server listens on, or ""
// when it is disabled.
func (app *DefaultApplication) MonitorAddr() string {
	return app.monitor.Addr()
}

// BroadcastNow triggers one broadcast round and returns how many user
// actors were notified.
func (app *DefaultApplication) BroadcastNow() int {
	return app.broadcaster.BroadcastAll()
}

// ProvisionUser creates a principal and its user actor.
func (app *DefaultApplication) ProvisionUser(ctx context.Context) (core.Identity, error) {
	sys := app.ActorSystem()
	if sys == nil {
		return core.Anonymous, ErrNotRunning
	}

	principal := core.Identity(uuid.NewString())
	if err := app.spawnUser(ctx, principal, true); err != nil {
		return core.Anonymous, &ApplicationError{Operation: "provision", Service: "canisters", Err: err}
	}

	_, err := sys.Ingress(SystemPrincipal).Call(ctx, userindex.Identity, userindex.MethodRegisterUser, userindex.RegisterArgs{
		User:     principal,
		Canister: individualuser.IdentityOf(principal),
	})
	if err != nil {
		if serr := sys.StopService(individualuser.ServiceName(principal)); serr != nil {
			logger.Warn("unregistered user actor left running", logger.KeyIdentity, principal, logger.Err(serr))
		}
		return core.Anonymous, &ApplicationError{Operation: "provision", Service: userindex.ServiceName, Err: err}
	}

	logger.Info("user provisioned", logger.KeyIdentity, principal)
	return principal, nil
}

// spawnUser starts the actor of principal over its own slots. A new actor is
// seeded with the principal as profile owner; a restored one keeps its map.
func (app *DefaultApplication) spawnUser(ctx context.Context, principal core.Identity, seed bool) error {
	app.mutex.RLock()
	cfg, sys, slots := app.config, app.actorSystem, app.slots
	app.mutex.RUnlock()

	self := individualuser.IdentityOf(principal)
	h := individualuser.New(store.Namespace(slots, self.String()), individualuser.Config{
		Owner:     principal,
		UserIndex: userindex.Identity,
		Ranking: ranking.Config{
			SoftCap:    cfg.Ranking.SoftCap,
			HardCap:    cfg.Ranking.HardCap,
			TopN:       cfg.Ranking.TopN,
			Aggregator: postcache.Identity,
		},
	}, app.metrics)

	if seed {
		initial := []access.Assignment{{Identity: principal, Role: access.ProfileOwner}}
		if admin := superAdmin(cfg); admin != core.Anonymous {
			initial = append(initial, access.Assignment{Identity: admin, Role: access.CanisterAdmin})
		}
		if _, err := h.Roles().Seed(ctx, initial...); err != nil {
			return err
		}
	}

	_, err := sys.NewService(individualuser.ServiceName(principal),
		metrics.InstrumentHandler(app.metrics, "individual_user", h), actorOptions(cfg))
	return err
}

// applyConfig applies the settings that can change while running.
func (app *DefaultApplication) applyConfig(oldConfig, newConfig *config.Config) {
	if oldConfig.Log.Level != newConfig.Log.Level {
		logger.SetLevel(newConfig.Log.Level.String())
		logger.Info("log level changed", "level", newConfig.Log.Level)
	}
	if oldConfig.Ranking.BroadcastInterval != newConfig.Ranking.BroadcastInterval {
		app.broadcaster.SetInterval(newConfig.Ranking.BroadcastInterval)
		logger.Info("broadcast interval changed", "interval", newConfig.Ranking.BroadcastInterval)
	}

	app.mutex.Lock()
	app.config.Log.Level = newConfig.Log.Level
	app.config.Ranking.BroadcastInterval = newConfig.Ranking.BroadcastInterval
	app.mutex.Unlock()
}

func actorOptions(cfg *config.Config) core.ActorOptions {
	return core.ActorOptions{
		MailboxSize:    cfg.Actor.MailboxSize,
		ProcessTimeout: cfg.Actor.ProcessTimeout,
	}
}

func superAdmin(cfg *config.Config) core.Identity {
	return core.Identity(cfg.KnownPrincipals[string(postcache.UserIdGlobalSuperAdmin)])
}

// ApplicationBuilder helps build and configure applications
type ApplicationBuilder struct {
	app        *DefaultApplication
	config     *config.Config
	configFile string
	loader     *config.Loader
	err        error
}

// NewApplicationBuilder creates a new application builder
func NewApplicationBuilder() *ApplicationBuilder {
	return &ApplicationBuilder{
		app:    NewApplication(),
		loader: config.NewLoader(),
	}
}

// WithConfig sets the configuration
func (b *ApplicationBuilder) WithConfig(cfg *config.Config) *ApplicationBuilder {
	b.config = cfg
	return b
}

// WithConfigFile loads the configuration from filename and reloads it when
// the file changes.
func (b *ApplicationBuilder) WithConfigFile(filename string) *ApplicationBuilder {
	b.configFile = filename
	return b
}

// WithLoader replaces the configuration loader
func (b *ApplicationBuilder) WithLoader(loader *config.Loader) *ApplicationBuilder {
	b.loader = loader
	return b
}

// WithService registers a service
func (b *ApplicationBuilder) WithService(name string, service Service, deps ...string) *ApplicationBuilder {
	if err := b.app.lifecycleManager.Register(name, service, deps...); err != nil && b.err == nil {
		b.err = err
	}
	return b
}

// WithServiceFactory registers a service factory
func (b *ApplicationBuilder) WithServiceFactory(name string, factory ServiceFactory) *ApplicationBuilder {
	if err := b.app.container.Register(name, factory); err != nil && b.err == nil {
		b.err = err
	}
	return b
}

// Build builds the configured application
func (b *ApplicationBuilder) Build() (*DefaultApplication, error) {
	if b.err != nil {
		return nil, b.err
	}

	cfg := b.config
	switch {
	case b.configFile != "":
		watcher, err := config.NewWatcher(b.configFile, b.loader)
		if err != nil {
			return nil, err
		}
		cfg = watcher.GetConfig()
		if err := b.app.lifecycleManager.Register("config-watcher", &ConfigWatcherService{app: b.app, watcher: watcher}, "ranking-broadcaster"); err != nil {
			_ = watcher.Stop()
			return nil, err
		}
	case cfg == nil:
		loaded, err := b.loader.AutoLoad()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := b.app.Configure(cfg); err != nil {
		return nil, fmt.Errorf("failed to configure application: %w", err)
	}
	return b.app, nil
}
