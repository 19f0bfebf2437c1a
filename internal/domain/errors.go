package domain

import (
	"context"
	"errors"
)

var (
	// ErrSearchNotFound signals an unknown or expired search id.
	ErrSearchNotFound = errors.New("search not found")
	// ErrDuplicateVendor signals a vendor id registered twice.
	ErrDuplicateVendor = errors.New("vendor already registered")
	// ErrNoActiveVendors signals an empty active vendor set at dispatch.
	ErrNoActiveVendors = errors.New("no active vendors")
	// ErrSearchCancelled signals a search abandoned by its caller.
	ErrSearchCancelled = errors.New("search cancelled")

	// ErrVendorTimeout signals a vendor call exceeding its deadline.
	ErrVendorTimeout = errors.New("vendor timeout")
	// ErrVendorTransport signals a network or HTTP-level vendor failure.
	ErrVendorTransport = errors.New("vendor transport error")
	// ErrVendorMalformed signals an unparseable vendor response.
	ErrVendorMalformed = errors.New("vendor malformed response")
	// ErrVendorRateLimited signals a vendor rejecting the call for rate.
	ErrVendorRateLimited = errors.New("vendor rate limited")
)

// VendorErrorKind labels a vendor failure for reporting. Classification
// is best-effort: adapters only need to surface success or failure.
type VendorErrorKind string

// Vendor failure classes surfaced in vendor_error events.
const (
	VendorErrTimeout     VendorErrorKind = "timeout"
	VendorErrTransport   VendorErrorKind = "transport"
	VendorErrMalformed   VendorErrorKind = "malformed_response"
	VendorErrRateLimited VendorErrorKind = "rate_limited"
)

// ClassifyVendorError maps an adapter failure onto the reporting
// taxonomy. Unrecognized errors count as transport failures.
func ClassifyVendorError(err error) VendorErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrVendorTimeout):
		return VendorErrTimeout
	case errors.Is(err, ErrVendorMalformed):
		return VendorErrMalformed
	case errors.Is(err, ErrVendorRateLimited):
		return VendorErrRateLimited
	default:
		return VendorErrTransport
	}
}
