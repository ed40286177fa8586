// Package realtime connects to the backend's event channel.
//
// Events are invalidation signals: a handler reacts by re-fetching the
// affected list, never by merging the event payload into local state.
package realtime

import (
	"encoding/json"
	"sync"
)

// Event names pushed by the backend.
const (
	EventCompanyUpdate     = "company-update"
	EventProductUpdate     = "product-update"
	EventServiceUpdate     = "service-update"
	EventSalesUpdate       = "sales-update"
	EventPurchaseUpdate    = "purchase-update"
	EventReceiptUpdate     = "receipt-update"
	EventPaymentUpdate     = "payment-update"
	EventJournalUpdate     = "journal-update"
	EventProformaUpdate    = "proforma-update"
	EventTransactionUpdate = "transaction-update"
	EventPermissionUpdate  = "PERMISSION_UPDATE"
)

// Broadcast rooms every session joins.
const (
	RoomInventory    = "all-inventory-updates"
	RoomTransactions = "all-transactions-updates"
	RoomMasters      = "all-masters"
)

// LedgerEvents are the events that change counterparty balances or which
// of them the user may see.
var LedgerEvents = []string{
	EventSalesUpdate,
	EventPurchaseUpdate,
	EventReceiptUpdate,
	EventPaymentUpdate,
	EventJournalUpdate,
	EventTransactionUpdate,
	EventCompanyUpdate,
	EventPermissionUpdate,
}

// Rooms returns the rooms a session joins: the user room, the client room
// and the broadcast rooms. Empty ids are skipped.
func Rooms(userID, clientID string) []string {
	rooms := make([]string, 0, 5)
	for _, id := range []string{userID, clientID} {
		if id != "" {
			rooms = append(rooms, id)
		}
	}
	return append(rooms, RoomInventory, RoomTransactions, RoomMasters)
}

// Message is one event frame.
type Message struct {
	Event string          `json:"event"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Command actions sent by a client.
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
)

// Command is a client to server frame.
type Command struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

// Handler handles one message.
type Handler func(Message)

// Dispatcher routes messages to handlers by event name.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	catchAll []Handler
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]Handler)}
}

// On registers fn for each of events.
func (d *Dispatcher) On(fn Handler, events ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, event := range events {
		d.handlers[event] = append(d.handlers[event], fn)
	}
}

// OnAny registers fn for every message.
func (d *Dispatcher) OnAny(fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.catchAll = append(d.catchAll, fn)
}

// Dispatch calls the handlers of msg.Event in registration order, then the
// catch-all handlers. It reports whether any event-specific handler ran.
func (d *Dispatcher) Dispatch(msg Message) bool {
	d.mu.RLock()
	handlers := d.handlers[msg.Event]
	catchAll := d.catchAll
	d.mu.RUnlock()

	for _, fn := range handlers {
		fn(msg)
	}
	for _, fn := range catchAll {
		fn(msg)
	}
	return len(handlers) > 0
}
