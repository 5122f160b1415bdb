package asset

import (
	"sync"

	"github.com/paulmach/orb"
)

// Event is one of the engine's notifications. The set is closed: only the
// types in this file implement it.
type Event interface {
	Kind() string
	event()
}

// CategoryChanged is published after relevance was re-evaluated.
type CategoryChanged struct {
	Category Category `json:"category"`
}

// PinMoved carries the new pin position in lon/lat.
type PinMoved struct {
	LonLat orb.Point `json:"lonlat"`
}

// AssetSelected is published when a feature becomes the selection.
type AssetSelected struct {
	LayerID   string         `json:"layer_id"`
	FeatureID string         `json:"feature_id"`
	LonLat    orb.Point      `json:"lonlat"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// AssetUnselected is published when a layer loses the selection.
type AssetUnselected struct {
	LayerID string `json:"layer_id"`
}

// MessageChanged is published when an advisory slot's content changes.
type MessageChanged struct {
	Slot    string       `json:"slot"`
	LayerID string       `json:"layer_id,omitempty"`
	State   MessageState `json:"state"`
	HTML    string       `json:"html"`
}

// RoutingChanged is published when routing overrides change.
type RoutingChanged struct {
	OnlySend  string   `json:"only_send,omitempty"`
	DoNotSend []string `json:"do_not_send,omitempty"`
	Effective []string `json:"effective"`
}

func (CategoryChanged) Kind() string { return "category_changed" }
func (PinMoved) Kind() string        { return "pin_moved" }
func (AssetSelected) Kind() string   { return "asset_selected" }
func (AssetUnselected) Kind() string { return "asset_unselected" }
func (MessageChanged) Kind() string  { return "message_changed" }
func (RoutingChanged) Kind() string  { return "routing_changed" }

func (CategoryChanged) event() {}
func (PinMoved) event()        {}
func (AssetSelected) event()   {}
func (AssetUnselected) event() {}
func (MessageChanged) event()  {}
func (RoutingChanged) event()  {}

// Bus is a fan-out pub/sub for engine events.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Publish sends an event to all subscribers without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}
