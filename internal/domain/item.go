package domain

// Availability of an item at its vendor.
type Availability string

// Availability values reported by vendor adapters.
const (
	AvailabilityInStock    Availability = "in_stock"
	AvailabilityOutOfStock Availability = "out_of_stock"
	AvailabilityUnknown    Availability = "unknown"
)

// Item is one normalized product discovered from a vendor.
// Immutable once appended to a search's item list.
type Item struct {
	VendorID string `json:"vendor_id"`
	// NativeID is the vendor's own identifier for the product, when known.
	NativeID     string       `json:"native_id,omitempty"`
	Name         string       `json:"name"`
	Price        *float64     `json:"price,omitempty"` // nil when the vendor reports no price
	Currency     string       `json:"currency,omitempty"`
	Availability Availability `json:"availability"`
	URL          string       `json:"url"`
	ImageURL     string       `json:"image_url,omitempty"`
	Brand        string       `json:"brand,omitempty"`
}

// Priced reports whether the vendor supplied a price for the item.
func (i Item) Priced() bool { return i.Price != nil }
