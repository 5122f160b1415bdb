package asset

import (
	"fmt"
	"regexp"
	"strings"
)

// MessageState is the advisory state of one layer's message slot.
type MessageState int

const (
	Hidden MessageState = iota
	ZoomPrompt
	PickPrompt
	SelectedMessage
)

func (s MessageState) String() string {
	return [...]string{"hidden", "zoom", "pick", "selected"}[s]
}

func (s MessageState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *MessageState) UnmarshalText(b []byte) error {
	for i, name := range [...]string{"hidden", "zoom", "pick", "selected"} {
		if string(b) == name {
			*s = MessageState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown message state %q", b)
}

// OverlapSlot is the global asset-overlap warning slot.
const OverlapSlot = "asset_overlap"

// Message is the content of one advisory slot.
type Message struct {
	Slot  string       `json:"slot"`
	State MessageState `json:"state"`
	HTML  string       `json:"html"`
}

// Renderer renders named message fragments.
type Renderer interface {
	Render(name string, data any) (string, error)
}

var nonAlpha = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SlotFor is the DOM id of a layer's message slot.
func SlotFor(layerID string) string {
	return "category_meta_message_" + nonAlpha.ReplaceAllString(layerID, "")
}

// messageFor computes the advisory for a layer. relevant is the category
// relevance including jurisdiction; selected is the layer's selection.
func messageFor(r Renderer, l *Layer, relevant, inRange bool, selected *Feature) Message {
	m := Message{Slot: SlotFor(l.cfg.ID)}
	if !relevant || !l.Interactive() || l.cfg.AssetItem == "" {
		return m
	}
	item := l.cfg.AssetItem
	var (
		name string
		data any
	)
	switch {
	case !inRange:
		m.State = ZoomPrompt
		name, data = "zoom-prompt", map[string]any{"Item": item}
	case selected != nil:
		m.State = SelectedMessage
		if mf, ok := l.actions.(MessageFormatter); ok {
			if html, ok := mf.SelectedMessage(l, selected); ok {
				m.HTML = html
				return m
			}
		}
		name, data = "selected", map[string]any{"Item": item, "ID": selected.ID}
	default:
		m.State = PickPrompt
		name, data = "pick-prompt", map[string]any{
			"Item":   item,
			"Type":   l.cfg.AssetType,
			"Custom": l.cfg.AssetItemMessage,
		}
	}
	html, err := r.Render(name, data)
	if err != nil {
		html = fallbackMessage(m.State, item)
	}
	m.HTML = strings.TrimSpace(html)
	return m
}

func fallbackMessage(s MessageState, item string) string {
	switch s {
	case ZoomPrompt:
		return "Zoom in to pick a " + item + " from the map"
	case SelectedMessage:
		return "You have selected " + item
	}
	return "You can pick a " + item + " from the map"
}
