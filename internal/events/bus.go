package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventSignalRejected  EventType = "SIGNAL_REJECTED"
	EventSignalUpdate    EventType = "SIGNAL_UPDATE"
	EventPriceUpdate     EventType = "PRICE_UPDATE"
	EventScanCompleted   EventType = "SCAN_COMPLETED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
	now         func() time.Time
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
		now:         time.Now,
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Each subscriber runs in its own goroutine.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = eb.now()
	}

	for _, sub := range eb.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignalGenerated publishes a signal generated event
func (eb *EventBus) PublishSignalGenerated(id, symbol, timeframe, direction string, confidence int, entryPrice float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"signal_id":   id,
			"symbol":      symbol,
			"timeframe":   timeframe,
			"direction":   direction,
			"confidence":  confidence,
			"entry_price": entryPrice,
		},
	})
}

// PublishSignalRejected publishes a blocked signal event
func (eb *EventBus) PublishSignalRejected(symbol, timeframe, reason string, achieved, threshold int, riskReward float64) {
	eb.Publish(Event{
		Type: EventSignalRejected,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"timeframe":   timeframe,
			"reason":      reason,
			"achieved":    achieved,
			"threshold":   threshold,
			"risk_reward": riskReward,
		},
	})
}

// PublishSignalUpdate publishes a lifecycle transition of an active signal
func (eb *EventBus) PublishSignalUpdate(id, symbol, updateType string, price, pnlPercent float64) {
	eb.Publish(Event{
		Type: EventSignalUpdate,
		Data: map[string]interface{}{
			"signal_id":   id,
			"symbol":      symbol,
			"update_type": updateType,
			"price":       price,
			"pnl_percent": pnlPercent,
		},
	})
}

// PublishPriceUpdate publishes a price update event
func (eb *EventBus) PublishPriceUpdate(symbol string, price float64) {
	eb.Publish(Event{
		Type: EventPriceUpdate,
		Data: map[string]interface{}{
			"symbol": symbol,
			"price":  price,
		},
	})
}

// PublishScanCompleted publishes the outcome of one scanner run
func (eb *EventBus) PublishScanCompleted(generated, rejected, failed int, duration time.Duration) {
	eb.Publish(Event{
		Type: EventScanCompleted,
		Data: map[string]interface{}{
			"generated":   generated,
			"rejected":    rejected,
			"failed":      failed,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
