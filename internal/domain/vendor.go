package domain

import "context"

// Vendor describes one external product source.
type Vendor struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	BaseURL  string `json:"base_url"`
	Country  string `json:"country"`
	Currency string `json:"currency"`
	Active   bool   `json:"active"`
}

// Adapter queries one vendor for products matching a query.
//
// Implementations must be safe for concurrent use by multiple searches:
// one adapter instance is registered per vendor and reused process-wide.
// The caller bounds every call with a context deadline; adapters are not
// trusted to self-limit. Returned items preserve the vendor's own order.
type Adapter interface {
	Search(ctx context.Context, query string, maxResults int) ([]Item, error)
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc func(ctx context.Context, query string, maxResults int) ([]Item, error)

// Search calls f.
func (f AdapterFunc) Search(ctx context.Context, query string, maxResults int) ([]Item, error) {
	return f(ctx, query, maxResults)
}
