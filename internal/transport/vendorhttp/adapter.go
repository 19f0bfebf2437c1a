package vendorhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dondelocompro/pricehub/internal/domain"
)

// Adapter queries one vendor's JSON search endpoint over HTTP.
// Failures are wrapped with the vendor error sentinels so the
// orchestrator can classify them without knowing HTTP.
type Adapter struct {
	vendorID  string
	searchURL string
	currency  string
	client    *http.Client
	logger    *zap.Logger
}

// Config holds one vendor endpoint's settings.
type Config struct {
	VendorID  string
	SearchURL string
	Currency  string
	Client    *http.Client
	Logger    *zap.Logger
}

// New creates an HTTP adapter for one vendor.
func New(cfg *Config) *Adapter {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Adapter{
		vendorID:  cfg.VendorID,
		searchURL: cfg.SearchURL,
		currency:  cfg.Currency,
		client:    client,
		logger:    cfg.Logger,
	}
}

// wireItem is a vendor response product. Vendors disagree on field
// names, so several aliases are accepted and normalized.
type wireItem struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Title        string   `json:"title"`
	Price        *float64 `json:"price"`
	Currency     string   `json:"currency"`
	URL          string   `json:"url"`
	Link         string   `json:"link"`
	ImageURL     string   `json:"image_url"`
	Image        string   `json:"image"`
	Brand        string   `json:"brand"`
	Availability string   `json:"availability"`
	InStock      *bool    `json:"in_stock"`
}

type wireEnvelope struct {
	Products []wireItem `json:"products"`
	Items    []wireItem `json:"items"`
	Results  []wireItem `json:"results"`
}

// Search implements domain.Adapter.
func (a *Adapter) Search(ctx context.Context, query string, maxResults int) ([]domain.Item, error) {
	u, err := url.Parse(a.searchURL)
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", domain.ErrVendorTransport)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(maxResults))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", domain.ErrVendorTransport)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		// Deadline errors pass through untouched for timeout classification.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("vendor %s request: %v: %w", a.vendorID, err, domain.ErrVendorTransport)
	}
	defer resp.Body.Close()

	if err := a.checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("vendor %s read body: %v: %w", a.vendorID, err, domain.ErrVendorTransport)
	}

	wire, err := decodeProducts(body)
	if err != nil {
		return nil, fmt.Errorf("vendor %s: %v: %w", a.vendorID, err, domain.ErrVendorMalformed)
	}

	if resp.StatusCode == http.StatusPartialContent {
		a.logger.Debug("vendor returned partial results",
			zap.String("vendor", a.vendorID),
			zap.Int("items", len(wire)),
		)
	}

	items := make([]domain.Item, 0, len(wire))
	for _, w := range wire {
		it, ok := a.normalize(w)
		if !ok {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

// checkStatus maps the vendor's HTTP status onto the failure taxonomy.
// 206 counts as success: the vendor returned what it could.
func (a *Adapter) checkStatus(code int) error {
	switch {
	case code == http.StatusOK || code == http.StatusPartialContent:
		return nil
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("vendor %s status %d: %w", a.vendorID, code, domain.ErrVendorRateLimited)
	default:
		return fmt.Errorf("vendor %s status %d: %w", a.vendorID, code, domain.ErrVendorTransport)
	}
}

// decodeProducts accepts either a bare JSON array or an envelope with a
// products/items/results field.
func decodeProducts(body []byte) ([]wireItem, error) {
	var list []wireItem
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var env wireEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode products: %v", err)
	}
	switch {
	case env.Products != nil:
		return env.Products, nil
	case env.Items != nil:
		return env.Items, nil
	case env.Results != nil:
		return env.Results, nil
	}
	return nil, fmt.Errorf("no product list in response")
}

// normalize maps a wire product onto the domain item. Nameless entries
// are dropped; everything else is kept even without a price.
func (a *Adapter) normalize(w wireItem) (domain.Item, bool) {
	name := w.Name
	if name == "" {
		name = w.Title
	}
	if name == "" {
		return domain.Item{}, false
	}

	link := w.URL
	if link == "" {
		link = w.Link
	}
	img := w.ImageURL
	if img == "" {
		img = w.Image
	}
	currency := w.Currency
	if currency == "" {
		currency = a.currency
	}

	avail := domain.AvailabilityUnknown
	switch {
	case w.Availability == string(domain.AvailabilityInStock) || (w.InStock != nil && *w.InStock):
		avail = domain.AvailabilityInStock
	case w.Availability == string(domain.AvailabilityOutOfStock) || (w.InStock != nil && !*w.InStock):
		avail = domain.AvailabilityOutOfStock
	}

	return domain.Item{
		VendorID:     a.vendorID,
		NativeID:     w.ID,
		Name:         name,
		Price:        w.Price,
		Currency:     currency,
		Availability: avail,
		URL:          link,
		ImageURL:     img,
		Brand:        w.Brand,
	}, true
}
