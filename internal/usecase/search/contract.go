package search

import "github.com/dondelocompro/pricehub/internal/domain"

// Registry is the vendor set contract consumed by the orchestrator.
type Registry interface {
	ActiveVendors() []domain.Vendor
	Adapter(id string) (domain.Adapter, bool)
}
