package events

import (
	"sync"

	"github.com/bitmark-inc/logger"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit      EventType = "block_commit"
	EventTxExecuted       EventType = "tx_executed"
	EventTxFailed         EventType = "tx_failed"
	EventTokenTransfer    EventType = "token_transfer"
	EventMarketDeployed   EventType = "market_deployed"
	EventItemListed       EventType = "item_listed"
	EventItemUpdated      EventType = "item_updated"
	EventItemDeleted      EventType = "item_deleted"
	EventItemPurchased    EventType = "item_purchased"
	EventItemDeactivated  EventType = "item_deactivated"
	EventFeeUpdated       EventType = "fee_updated"
	EventFeesWithdrawn    EventType = "fees_withdrawn"
	EventAdminTransferred EventType = "admin_transferred"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Sink is anything that accepts events. Contract code emits into a Sink so
// the caller decides when (and whether) events are published.
type Sink interface {
	Emit(ev Event)
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	log      *logger.L
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[EventType][]Handler),
		log:      logger.New("events"),
	}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot crash the node or halt block production.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Errorf("handler panicked for %s: %v", ev.Type, r)
				}
			}()
			h(ev)
		}()
	}
}

// Recorder is a Sink that keeps events in memory, in emission order.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.Events = append(r.Events, ev)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []EventType {
	types := make([]EventType, len(r.Events))
	for i, ev := range r.Events {
		types[i] = ev.Type
	}
	return types
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.Events = nil
}
