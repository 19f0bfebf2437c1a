// Package registry holds the process-wide vendor set. One adapter
// instance is registered per vendor at startup and shared read-only by
// every concurrent search.
package registry

import (
	"fmt"
	"sync"

	"github.com/dondelocompro/pricehub/internal/domain"
)

// Registry maps vendor ids to their descriptors and adapters.
// Registration is append-only; vendors are never removed during normal
// operation.
type Registry struct {
	mu       sync.RWMutex
	vendors  map[string]domain.Vendor
	adapters map[string]domain.Adapter
	order    []string // registration order, keeps listings stable
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		vendors:  make(map[string]domain.Vendor),
		adapters: make(map[string]domain.Adapter),
	}
}

// Register adds a vendor with its adapter. Registering the same vendor
// id twice fails with domain.ErrDuplicateVendor.
func (r *Registry) Register(vendor domain.Vendor, adapter domain.Adapter) error {
	if vendor.ID == "" {
		return fmt.Errorf("vendor id is required")
	}
	if adapter == nil {
		return fmt.Errorf("adapter is required for vendor %q", vendor.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.vendors[vendor.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateVendor, vendor.ID)
	}
	r.vendors[vendor.ID] = vendor
	r.adapters[vendor.ID] = adapter
	r.order = append(r.order, vendor.ID)
	return nil
}

// ActiveVendors returns the active vendor set in registration order.
func (r *Registry) ActiveVendors() []domain.Vendor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Vendor, 0, len(r.order))
	for _, id := range r.order {
		if v := r.vendors[id]; v.Active {
			out = append(out, v)
		}
	}
	return out
}

// AllVendors returns every registered vendor in registration order,
// active or not.
func (r *Registry) AllVendors() []domain.Vendor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Vendor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.vendors[id])
	}
	return out
}

// Adapter returns the adapter registered for the vendor id.
func (r *Registry) Adapter(id string) (domain.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[id]
	return a, ok
}

// Vendor returns the descriptor registered for the vendor id.
func (r *Registry) Vendor(id string) (domain.Vendor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.vendors[id]
	return v, ok
}

// VendorIDs returns all registered vendor ids in registration order.
func (r *Registry) VendorIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ActiveVendorIDs returns the ids of active vendors in registration order.
func (r *Registry) ActiveVendorIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if r.vendors[id].Active {
			out = append(out, id)
		}
	}
	return out
}
