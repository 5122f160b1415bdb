package asset

import (
	"maps"
	"sync"
)

// Form is the externally owned set of report form fields.
type Form interface {
	Get(name string) string
	Set(name, value string)
}

// Field names the engine itself writes.
const (
	CategoryField  = "category"
	LatitudeField  = "latitude"
	LongitudeField = "longitude"
)

// MemoryForm is an in-memory Form.
type MemoryForm struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryForm() *MemoryForm {
	return &MemoryForm{values: make(map[string]string)}
}

func (f *MemoryForm) Get(name string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values[name]
}

func (f *MemoryForm) Set(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value == "" {
		delete(f.values, name)
		return
	}
	f.values[name] = value
}

// Values returns a copy of all non-empty fields.
func (f *MemoryForm) Values() map[string]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.values)
}
