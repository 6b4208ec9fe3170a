package bootstrap

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/najoast/socialshard/logger"
)

// Lifecycle event types.
const (
	EventRegistered         EventType = "service.registered"
	EventStarting           EventType = "lifecycle.starting"
	EventServiceStarting    EventType = "service.starting"
	EventServiceStarted     EventType = "service.started"
	EventServiceStartFailed EventType = "service.start_failed"
	EventStarted            EventType = "lifecycle.started"
	EventStopping           EventType = "lifecycle.stopping"
	EventServiceStopping    EventType = "service.stopping"
	EventServiceStopped     EventType = "service.stopped"
	EventServiceStopFailed  EventType = "service.stop_failed"
	EventStopped            EventType = "lifecycle.stopped"
)

// DefaultLifecycleManager runs the node's services. Its lock guards the
// bookkeeping only and is never held while a service starts, stops or
// reports health, so a health probe can run during Start.
type DefaultLifecycleManager struct {
	mutex sync.RWMutex

	services     map[string]Service
	dependencies map[string][]string
	startOrder   []string // services actually started, in order

	started  bool
	stopping bool

	eventChan chan LifecycleEvent
	listeners []func(LifecycleEvent)

	timeout time.Duration // per Start/Stop call of one service
}

func NewLifecycleManager() *DefaultLifecycleManager {
	return &DefaultLifecycleManager{
		services:     make(map[string]Service),
		dependencies: make(map[string][]string),
		eventChan:    make(chan LifecycleEvent, 100),
		timeout:      30 * time.Second,
	}
}

// Register adds service under name. Registration closes once Start ran.
func (lm *DefaultLifecycleManager) Register(name string, service Service, deps ...string) error {
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if service == nil {
		return fmt.Errorf("service cannot be nil")
	}

	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return fmt.Errorf("cannot register service %s: lifecycle manager already started", name)
	}

	if _, exists := lm.services[name]; exists {
		return fmt.Errorf("service %s is already registered", name)
	}

	lm.services[name] = service
	lm.dependencies[name] = deps

	lm.broadcastEvent(LifecycleEvent{
		Type:      EventRegistered,
		Service:   name,
		Timestamp: time.Now(),
		Data:      map[string]any{"dependencies": deps},
	})

	return nil
}

// Start starts all services in dependency order. When one fails, the
// services already started are stopped again.
func (lm *DefaultLifecycleManager) Start(ctx context.Context) error {
	lm.mutex.Lock()
	if lm.started {
		lm.mutex.Unlock()
		return fmt.Errorf("lifecycle manager already started")
	}
	startOrder, err := lm.calculateStartOrder()
	if err != nil {
		lm.mutex.Unlock()
		return fmt.Errorf("failed to calculate start order: %w", err)
	}
	lm.started = true
	services := lm.snapshot()
	timeout := lm.timeout
	lm.mutex.Unlock()

	lm.emit(LifecycleEvent{
		Type:      EventStarting,
		Timestamp: time.Now(),
		Data:      map[string]any{"order": startOrder},
	})

	var started []string
	for _, serviceName := range startOrder {
		service := services[serviceName]

		lm.emit(LifecycleEvent{Type: EventServiceStarting, Service: serviceName, Timestamp: time.Now()})

		startCtx, cancel := context.WithTimeout(ctx, timeout)
		err := service.Start(startCtx)
		cancel()

		if err != nil {
			lm.emit(LifecycleEvent{Type: EventServiceStartFailed, Service: serviceName, Timestamp: time.Now(), Error: err})
			lm.stopAll(ctx, started, services, timeout)

			lm.mutex.Lock()
			lm.started = false
			lm.mutex.Unlock()
			return &ApplicationError{Operation: "start", Service: serviceName, Err: err}
		}

		started = append(started, serviceName)
		lm.emit(LifecycleEvent{Type: EventServiceStarted, Service: serviceName, Timestamp: time.Now()})
	}

	lm.mutex.Lock()
	lm.startOrder = started
	lm.mutex.Unlock()

	lm.emit(LifecycleEvent{Type: EventStarted, Timestamp: time.Now()})
	return nil
}

// Stop stops the started services in reverse start order and returns the
// last failure.
func (lm *DefaultLifecycleManager) Stop(ctx context.Context) error {
	lm.mutex.Lock()
	if !lm.started {
		lm.mutex.Unlock()
		return nil
	}
	if lm.stopping {
		lm.mutex.Unlock()
		return fmt.Errorf("lifecycle manager already stopping")
	}
	lm.stopping = true
	startOrder := slices.Clone(lm.startOrder)
	services := lm.snapshot()
	timeout := lm.timeout
	lm.mutex.Unlock()

	lm.emit(LifecycleEvent{Type: EventStopping, Timestamp: time.Now()})

	lastError := lm.stopAll(ctx, startOrder, services, timeout)

	lm.mutex.Lock()
	lm.started = false
	lm.stopping = false
	lm.startOrder = nil
	lm.mutex.Unlock()

	lm.emit(LifecycleEvent{Type: EventStopped, Timestamp: time.Now()})
	return lastError
}

// stopAll stops the named services in reverse order and returns the last
// error.
func (lm *DefaultLifecycleManager) stopAll(ctx context.Context, order []string, services map[string]Service, timeout time.Duration) error {
	var lastError error
	for i := len(order) - 1; i >= 0; i-- {
		serviceName := order[i]

		lm.emit(LifecycleEvent{Type: EventServiceStopping, Service: serviceName, Timestamp: time.Now()})

		stopCtx, cancel := context.WithTimeout(ctx, timeout)
		err := services[serviceName].Stop(stopCtx)
		cancel()

		if err != nil {
			lastError = &ApplicationError{Operation: "stop", Service: serviceName, Err: err}
			lm.emit(LifecycleEvent{Type: EventServiceStopFailed, Service: serviceName, Timestamp: time.Now(), Error: err})
			continue
		}
		lm.emit(LifecycleEvent{Type: EventServiceStopped, Service: serviceName, Timestamp: time.Now()})
	}
	return lastError
}

// HealthProbeTimeout bounds a single service's Health call.
const HealthProbeTimeout = 5 * time.Second

// Health probes every service concurrently.
func (lm *DefaultLifecycleManager) Health(ctx context.Context) (map[string]HealthStatus, error) {
	lm.mutex.RLock()
	services := lm.snapshot()
	lm.mutex.RUnlock()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		health = make(map[string]HealthStatus, len(services))
	)
	for name, service := range services {
		wg.Add(1)
		go func(name string, service Service) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, HealthProbeTimeout)
			status, err := service.Health(probeCtx)
			cancel()
			if err != nil {
				status = HealthStatus{State: HealthUnhealthy, Message: err.Error()}
			}
			if status.LastCheck.IsZero() {
				status.LastCheck = time.Now()
			}

			mu.Lock()
			health[name] = status
			mu.Unlock()
		}(name, service)
	}
	wg.Wait()

	return health, nil
}

func (lm *DefaultLifecycleManager) Services() []string {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	names := make([]string, 0, len(lm.services))
	for name := range lm.services {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

func (lm *DefaultLifecycleManager) Events() <-chan LifecycleEvent {
	return lm.eventChan
}

// AddListener registers listener. Listeners run on their own goroutine.
func (lm *DefaultLifecycleManager) AddListener(listener func(LifecycleEvent)) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	lm.listeners = append(lm.listeners, listener)
}

func (lm *DefaultLifecycleManager) SetTimeout(timeout time.Duration) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	lm.timeout = timeout
}

func (lm *DefaultLifecycleManager) IsStarted() bool {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	return lm.started
}

func (lm *DefaultLifecycleManager) GetService(name string) (Service, bool) {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	service, exists := lm.services[name]
	return service, exists
}

func (lm *DefaultLifecycleManager) snapshot() map[string]Service {
	services := make(map[string]Service, len(lm.services))
	for name, service := range lm.services {
		services[name] = service
	}
	return services
}

// calculateStartOrder is a topological sort (Kahn). Ties are broken by
// name so the order is stable across runs.
func (lm *DefaultLifecycleManager) calculateStartOrder() ([]string, error) {
	inDegree := make(map[string]int, len(lm.services))
	graph := make(map[string][]string, len(lm.services))

	for service := range lm.services {
		inDegree[service] = 0
	}

	for service, deps := range lm.dependencies {
		for _, dep := range deps {
			if _, exists := lm.services[dep]; !exists {
				return nil, fmt.Errorf("dependency %s of service %s is not registered", dep, service)
			}
			graph[dep] = append(graph[dep], service)
			inDegree[service]++
		}
	}

	var queue []string
	for service, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, service)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(lm.services))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		dependents := graph[current]
		sort.Strings(dependents)
		for _, dependent := range dependents {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(lm.services) {
		return nil, fmt.Errorf("circular dependency detected")
	}

	return result, nil
}

// emit broadcasts event with the listener list read under the lock.
func (lm *DefaultLifecycleManager) emit(event LifecycleEvent) {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()
	lm.broadcastEvent(event)
}

// broadcastEvent sends event to the channel and every listener. The caller
// holds the mutex.
func (lm *DefaultLifecycleManager) broadcastEvent(event LifecycleEvent) {
	select {
	case lm.eventChan <- event:
	default:
	}

	for _, listener := range lm.listeners {
		go func(l func(LifecycleEvent)) {
			defer func() {
				if r := recover(); r != nil {
					logger.Warn("lifecycle listener panicked", "panic", r, "event", event.Type)
				}
			}()
			l(event)
		}(listener)
	}
}
