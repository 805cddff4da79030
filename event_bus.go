package hotswap

import (
	"context"
	"errors"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/GoCodeAlone/hotswap/logging"
)

// Static errors for the event bus.
var ErrObserverNil = errors.New("observer is nil")

// observerRegistration holds information about a registered observer
type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool // Empty means all events
	registeredAt time.Time
}

// EventBus is the default Subject. Every observer is notified on its own
// goroutine; panics and errors are logged and never reach the emitter.
type EventBus struct {
	observers     map[string]*observerRegistration
	observerMutex sync.RWMutex
	logger        logging.Logger

	// inflight counts running deliveries; idle is closed when it drops to zero.
	inflightMutex sync.Mutex
	inflight      int
	idle          chan struct{}
}

// NewEventBus creates an empty event bus.
func NewEventBus(logger logging.Logger) *EventBus {
	return &EventBus{
		observers: make(map[string]*observerRegistration),
		logger:    logging.OrNop(logger),
	}
}

// RegisterObserver implements Subject.
func (b *EventBus) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrObserverNil
	}

	eventTypeMap := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}

	b.observerMutex.Lock()
	defer b.observerMutex.Unlock()
	b.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	}

	b.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver implements Subject.
func (b *EventBus) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return ErrObserverNil
	}

	b.observerMutex.Lock()
	defer b.observerMutex.Unlock()
	if _, exists := b.observers[observer.ObserverID()]; exists {
		delete(b.observers, observer.ObserverID())
		b.logger.Debug("Observer unregistered", "observerID", observer.ObserverID())
	}
	return nil
}

// NotifyObservers implements Subject. The event is validated before any
// observer sees it.
func (b *EventBus) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := ValidateCloudEvent(event); err != nil {
		b.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	b.observerMutex.RLock()
	defer b.observerMutex.RUnlock()

	for _, registration := range b.observers {
		if len(registration.eventTypes) > 0 && !registration.eventTypes[event.Type()] {
			continue
		}

		b.deliveryStarted()
		go func() {
			defer b.deliveryDone()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("Observer panicked", "observerID", registration.observer.ObserverID(), "event", event.Type(), "panic", r)
				}
			}()

			if err := registration.observer.OnEvent(ctx, event); err != nil {
				b.logger.Error("Observer error", "observerID", registration.observer.ObserverID(), "event", event.Type(), "error", err)
			}
		}()
	}
	return nil
}

// GetObservers implements Subject.
func (b *EventBus) GetObservers() []ObserverInfo {
	b.observerMutex.RLock()
	defer b.observerMutex.RUnlock()

	info := make([]ObserverInfo, 0, len(b.observers))
	for _, registration := range b.observers {
		eventTypes := make([]string, 0, len(registration.eventTypes))
		for eventType := range registration.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}
		info = append(info, ObserverInfo{
			ID:           registration.observer.ObserverID(),
			EventTypes:   eventTypes,
			RegisteredAt: registration.registeredAt,
		})
	}
	return info
}

// Wait blocks until every in-flight notification has returned or ctx is
// done. Notifications sent while waiting extend the wait.
func (b *EventBus) Wait(ctx context.Context) error {
	b.inflightMutex.Lock()
	if b.inflight == 0 {
		b.inflightMutex.Unlock()
		return nil
	}
	idle := b.idle
	b.inflightMutex.Unlock()

	select {
	case <-idle:
		return b.Wait(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *EventBus) deliveryStarted() {
	b.inflightMutex.Lock()
	defer b.inflightMutex.Unlock()
	if b.inflight == 0 {
		b.idle = make(chan struct{})
	}
	b.inflight++
}

func (b *EventBus) deliveryDone() {
	b.inflightMutex.Lock()
	defer b.inflightMutex.Unlock()
	b.inflight--
	if b.inflight == 0 {
		close(b.idle)
	}
}
