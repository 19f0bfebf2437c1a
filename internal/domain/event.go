package domain

import "time"

// EventKind tags an event on a search's stream. The set is closed;
// names are part of the wire contract with subscribers.
type EventKind string

// Event kinds, in lifecycle order.
const (
	EventSearchStarted   EventKind = "search_started"
	EventVendorStarted   EventKind = "vendor_started"
	EventProductFound    EventKind = "product_found"
	EventVendorCompleted EventKind = "vendor_completed"
	EventVendorError     EventKind = "vendor_error"
	EventSearchCompleted EventKind = "search_completed"
	EventSearchFailed    EventKind = "search_failed"
)

// Terminal reports whether the kind ends a search's event stream.
func (k EventKind) Terminal() bool {
	return k == EventSearchCompleted || k == EventSearchFailed
}

// Event is one immutable record on a search's event stream. Seq is
// assigned at publish time and is unique and monotonically increasing
// within one search. Only the fields relevant to Kind are set;
// Duration values are in seconds.
type Event struct {
	Seq       uint64    `json:"seq"`
	Kind      EventKind `json:"kind"`
	SearchID  string    `json:"search_id"`
	Timestamp time.Time `json:"timestamp"`

	VendorID    string   `json:"vendor_id,omitempty"`
	VendorCount int      `json:"vendor_count,omitempty"`
	Item        *Item    `json:"item,omitempty"`
	ItemCount   int      `json:"item_count,omitempty"`
	Duration    float64  `json:"duration,omitempty"`
	Error       string   `json:"error,omitempty"`
	ErrorKind   string   `json:"error_kind,omitempty"`
	TotalItems  int      `json:"total_items,omitempty"`
	Summary     *Summary `json:"summary,omitempty"`
}

// NewSearchStarted announces dispatch across vendorCount vendors.
func NewSearchStarted(searchID string, vendorCount int) Event {
	return Event{
		Kind:        EventSearchStarted,
		SearchID:    searchID,
		Timestamp:   time.Now().UTC(),
		VendorCount: vendorCount,
	}
}

// NewVendorStarted announces that one vendor's lookup began.
func NewVendorStarted(searchID, vendorID string) Event {
	return Event{
		Kind:      EventVendorStarted,
		SearchID:  searchID,
		Timestamp: time.Now().UTC(),
		VendorID:  vendorID,
	}
}

// NewProductFound carries one discovered item, emitted immediately.
func NewProductFound(searchID string, item Item) Event {
	return Event{
		Kind:      EventProductFound,
		SearchID:  searchID,
		Timestamp: time.Now().UTC(),
		VendorID:  item.VendorID,
		Item:      &item,
	}
}

// NewVendorCompleted reports one vendor's successful outcome.
func NewVendorCompleted(searchID, vendorID string, itemCount int, duration float64) Event {
	return Event{
		Kind:      EventVendorCompleted,
		SearchID:  searchID,
		Timestamp: time.Now().UTC(),
		VendorID:  vendorID,
		ItemCount: itemCount,
		Duration:  duration,
	}
}

// NewVendorError reports one vendor's failed outcome.
func NewVendorError(searchID, vendorID, errMsg string, kind VendorErrorKind, duration float64) Event {
	return Event{
		Kind:      EventVendorError,
		SearchID:  searchID,
		Timestamp: time.Now().UTC(),
		VendorID:  vendorID,
		Error:     errMsg,
		ErrorKind: string(kind),
		Duration:  duration,
	}
}

// NewSearchCompleted is the terminal event of a successful search.
func NewSearchCompleted(searchID string, totalItems int, duration float64, summary Summary) Event {
	return Event{
		Kind:       EventSearchCompleted,
		SearchID:   searchID,
		Timestamp:  time.Now().UTC(),
		TotalItems: totalItems,
		Duration:   duration,
		Summary:    &summary,
	}
}

// NewSearchFailed is the terminal event of a search that could not run.
func NewSearchFailed(searchID, errMsg string) Event {
	return Event{
		Kind:      EventSearchFailed,
		SearchID:  searchID,
		Timestamp: time.Now().UTC(),
		Error:     errMsg,
	}
}
