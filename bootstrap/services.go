package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/najoast/socialshard/access"
	"github.com/najoast/socialshard/config"
	"github.com/najoast/socialshard/core"
	"github.com/najoast/socialshard/individualuser"
	"github.com/najoast/socialshard/logger"
	"github.com/najoast/socialshard/metrics"
	"github.com/najoast/socialshard/postcache"
	"github.com/najoast/socialshard/store"
	"github.com/najoast/socialshard/store/badger"
	"github.com/najoast/socialshard/store/memory"
	redisstore "github.com/najoast/socialshard/store/redis"
	"github.com/najoast/socialshard/userindex"
)

// healthSlot is probed by the store health check. It is never written.
const healthSlot = "__health__"

// StoreService opens the configured slot backend
type StoreService struct {
	app     *DefaultApplication
	backend string
}

func (s *StoreService) Name() string {
	return KeyStore
}

func (s *StoreService) Start(ctx context.Context) error {
	cfg := s.app.Config().Store
	slots, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	s.app.mutex.Lock()
	s.app.slots = slots
	s.app.mutex.Unlock()
	s.backend = cfg.Backend

	s.app.container.Set(KeyStore, slots)
	logger.Info("store opened", logger.KeyBackend, cfg.Backend)
	return nil
}

func (s *StoreService) Stop(ctx context.Context) error {
	s.app.mutex.Lock()
	slots := s.app.slots
	s.app.slots = nil
	s.app.mutex.Unlock()
	s.app.container.Set(KeyStore, nil)

	if slots == nil {
		return nil
	}
	return slots.Close()
}

func (s *StoreService) Health(ctx context.Context) (HealthStatus, error) {
	s.app.mutex.RLock()
	slots := s.app.slots
	s.app.mutex.RUnlock()

	if slots == nil {
		return HealthStatus{State: HealthStopped, Message: "store closed"}, nil
	}
	if _, err := slots.Get(ctx, healthSlot); err != nil && !errors.Is(err, store.ErrNotFound) {
		return HealthStatus{State: HealthUnhealthy, Message: err.Error()}, nil
	}
	return HealthStatus{
		State: HealthHealthy,
		Data:  map[string]any{logger.KeyBackend: s.backend},
	}, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendBadger:
		if cfg.Path == "" {
			return badger.OpenInMemory()
		}
		return badger.Open(cfg.Path)
	case config.BackendRedis:
		return redisstore.New(ctx, redisstore.Options{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("%w: backend %q", config.ErrInvalidStore, cfg.Backend)
	}
}

// ActorSystemService wraps the actor system as a managed service
type ActorSystemService struct {
	app *DefaultApplication
}

func (s *ActorSystemService) Name() string {
	return KeyActorSystem
}

func (s *ActorSystemService) Start(ctx context.Context) error {
	sys := core.NewActorSystem()
	sys.SetCallTimeout(s.app.Config().Actor.CallTimeout)

	s.app.mutex.Lock()
	s.app.actorSystem = sys
	s.app.mutex.Unlock()

	s.app.container.Set(KeyActorSystem, sys)
	return nil
}

func (s *ActorSystemService) Stop(ctx context.Context) error {
	s.app.mutex.Lock()
	sys := s.app.actorSystem
	s.app.actorSystem = nil
	s.app.mutex.Unlock()
	s.app.container.Set(KeyActorSystem, nil)

	if sys == nil {
		return nil
	}
	return sys.Shutdown(ctx)
}

func (s *ActorSystemService) Health(ctx context.Context) (HealthStatus, error) {
	sys := s.app.ActorSystem()
	if sys == nil {
		return HealthStatus{State: HealthStopped, Message: "actor system not running"}, nil
	}
	return HealthStatus{
		State: HealthHealthy,
		Data:  map[string]any{"services": len(sys.ListServices())},
	}, nil
}

// CanisterService spawns the user index and the post cache, seeds their
// administrators and respawns every registered user actor.
type CanisterService struct {
	app *DefaultApplication
}

func (s *CanisterService) Name() string {
	return "canisters"
}

func (s *CanisterService) Start(ctx context.Context) error {
	app := s.app
	cfg := app.Config()
	sys := app.ActorSystem()

	app.mutex.RLock()
	slots := app.slots
	app.mutex.RUnlock()

	index := userindex.New(store.Namespace(slots, userindex.Identity.String()), app.metrics)
	cache := postcache.New(store.Namespace(slots, postcache.Identity.String()), postcache.Config{
		Feed: postcache.FeedConfig{
			SoftCap: cfg.Feed.SoftCap,
			HardCap: cfg.Feed.HardCap,
			MaxPage: cfg.Feed.MaxPage,
		},
		Known: knownPrincipals(cfg),
	}, app.metrics)

	if err := s.seedRoles(ctx, superAdmin(cfg), index, cache); err != nil {
		return err
	}

	opts := actorOptions(cfg)
	if _, err := sys.NewService(userindex.ServiceName, metrics.InstrumentHandler(app.metrics, userindex.ServiceName, index), opts); err != nil {
		return err
	}
	if _, err := sys.NewService(postcache.ServiceName, metrics.InstrumentHandler(app.metrics, postcache.ServiceName, cache), opts); err != nil {
		return err
	}

	app.container.Set(KeyUserIndex, index)
	app.container.Set(KeyPostCache, cache)

	if n, err := cache.Feed().Len(ctx); err == nil {
		app.metrics.SetFeedSize(n)
	}

	restored, err := s.restoreUsers(ctx, index)
	if err != nil {
		return err
	}
	logger.Info("canisters started", logger.KeyCount, restored)
	return nil
}

// seedRoles gives the controller and the super admin their roles the first
// time the actors run. Maps from an earlier run are kept as they are.
func (s *CanisterService) seedRoles(ctx context.Context, admin core.Identity, index *userindex.Handler, cache *postcache.Handler) error {
	indexRoles := []access.Assignment{{Identity: SystemPrincipal, Role: access.CanisterController}}
	var cacheRoles []access.Assignment
	if admin != core.Anonymous {
		indexRoles = append(indexRoles, access.Assignment{Identity: admin, Role: access.CanisterAdmin})
		cacheRoles = append(cacheRoles, access.Assignment{Identity: admin, Role: access.CanisterAdmin})
	}

	if seeded, err := index.Roles().Seed(ctx, indexRoles...); err != nil {
		return err
	} else if seeded {
		logger.Debug("roles seeded", logger.KeyActor, userindex.Identity, logger.KeyCount, len(indexRoles))
	}
	if seeded, err := cache.Roles().Seed(ctx, cacheRoles...); err != nil {
		return err
	} else if seeded {
		logger.Debug("roles seeded", logger.KeyActor, postcache.Identity, logger.KeyCount, len(cacheRoles))
	}
	return nil
}

// restoreUsers respawns the actors of users registered in an earlier run.
func (s *CanisterService) restoreUsers(ctx context.Context, index *userindex.Handler) (int, error) {
	users, err := index.Registry().Users(ctx)
	if err != nil {
		return 0, err
	}
	restored := 0
	for user, canister := range users {
		if canister != individualuser.IdentityOf(user) {
			continue
		}
		if err := s.app.spawnUser(ctx, user, false); err != nil {
			return restored, fmt.Errorf("restore %s: %w", user, err)
		}
		restored++
	}
	return restored, nil
}

// Stop withdraws the handlers; their actors go down with the actor system.
func (s *CanisterService) Stop(ctx context.Context) error {
	s.app.container.Set(KeyUserIndex, nil)
	s.app.container.Set(KeyPostCache, nil)
	return nil
}

func (s *CanisterService) Health(ctx context.Context) (HealthStatus, error) {
	sys := s.app.ActorSystem()
	if sys == nil {
		return HealthStatus{State: HealthStopped}, nil
	}
	for _, id := range []core.Identity{userindex.Identity, postcache.Identity} {
		if _, ok := sys.Resolve(id); !ok {
			return HealthStatus{State: HealthUnhealthy, Message: id.String() + " is not running"}, nil
		}
	}
	return HealthStatus{State: HealthHealthy}, nil
}

func knownPrincipals(cfg *config.Config) map[postcache.KnownPrincipal]core.Identity {
	known := map[postcache.KnownPrincipal]core.Identity{
		postcache.CanisterIdUserIndex: userindex.Identity,
		postcache.CanisterIdPostCache: postcache.Identity,
	}
	for kind, id := range cfg.KnownPrincipals {
		known[postcache.KnownPrincipal(kind)] = core.Identity(id)
	}
	return known
}

// BroadcasterService periodically asks every user actor to broadcast its
// top posts.
type BroadcasterService struct {
	app *DefaultApplication

	interval atomic.Int64
	reset    chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	rounds   atomic.Uint64
}

func (s *BroadcasterService) Name() string {
	return "ranking-broadcaster"
}

func (s *BroadcasterService) Start(ctx context.Context) error {
	s.interval.Store(int64(s.app.Config().Ranking.BroadcastInterval))
	s.reset = make(chan struct{}, 1)
	s.done = make(chan struct{})

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.loop(loopCtx)
	return nil
}

func (s *BroadcasterService) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(time.Duration(s.interval.Load()))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reset:
			ticker.Reset(time.Duration(s.interval.Load()))
		case <-ticker.C:
			s.BroadcastAll()
		}
	}
}

// SetInterval changes the broadcast period. Non-positive values are ignored.
func (s *BroadcasterService) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.interval.Store(int64(d))
	select {
	case s.reset <- struct{}{}:
	default:
	}
}

// Interval returns the current broadcast period.
func (s *BroadcasterService) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// BroadcastAll notifies every user actor once and returns how many were
// reached.
func (s *BroadcasterService) BroadcastAll() int {
	sys := s.app.ActorSystem()
	if sys == nil {
		return 0
	}
	s.rounds.Add(1)

	ref := sys.Ingress(SchedulerPrincipal)
	sent := 0
	for _, h := range sys.ListServices() {
		if !strings.HasPrefix(h.Name, individualuser.ServicePrefix) {
			continue
		}
		if err := ref.Notify(h.Identity, individualuser.MethodBroadcastTopPosts, nil); err != nil {
			logger.Debug("broadcast trigger dropped", logger.KeyActor, h.Identity, logger.Err(err))
			continue
		}
		sent++
	}
	logger.Debug("broadcast round", logger.KeyCount, sent)
	return sent
}

func (s *BroadcasterService) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *BroadcasterService) Health(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{
		State: HealthHealthy,
		Data: map[string]any{
			"interval": s.Interval().String(),
			"rounds":   s.rounds.Load(),
		},
	}, nil
}

// MonitorService serves the Prometheus metrics and the health report
type MonitorService struct {
	app *DefaultApplication

	mu     sync.Mutex
	server *http.Server
	addr   string
}

func (s *MonitorService) Name() string {
	return "monitor"
}

func (s *MonitorService) Start(ctx context.Context) error {
	cfg := s.app.Config().Monitor
	if !cfg.Enabled {
		return nil
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("monitor listen: %w", err)
	}
	server := &http.Server{Handler: newMonitorRouter(s.app, cfg), ReadHeaderTimeout: 5 * time.Second}

	s.mu.Lock()
	s.server = server
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("monitor server failed", logger.Err(err))
		}
	}()
	logger.Info("monitor listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the listen address, or "" when the server is not running.
func (s *MonitorService) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *MonitorService) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server, s.addr = nil, ""
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (s *MonitorService) Health(ctx context.Context) (HealthStatus, error) {
	if addr := s.Addr(); addr != "" {
		return HealthStatus{State: HealthHealthy, Data: map[string]any{"addr": addr}}, nil
	}
	return HealthStatus{State: HealthUnknown, Message: "monitor disabled"}, nil
}

// ConfigWatcherService reloads the configuration file and applies the
// settings that can change at runtime.
type ConfigWatcherService struct {
	app     *DefaultApplication
	watcher *config.Watcher
	once    sync.Once
}

func (s *ConfigWatcherService) Name() string {
	return "config-watcher"
}

func (s *ConfigWatcherService) Start(ctx context.Context) error {
	s.once.Do(func() { s.watcher.OnConfigChange(s.app.applyConfig) })
	return s.watcher.Start()
}

func (s *ConfigWatcherService) Stop(ctx context.Context) error {
	return s.watcher.Stop()
}

func (s *ConfigWatcherService) Health(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{State: HealthHealthy}, nil
}
