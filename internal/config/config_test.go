package config

import "testing"

func boolPtr(b bool) *bool { return &b }

func validVendors() []VendorConfig {
	return []VendorConfig{
		{ID: "cemaco", Name: "Cemaco", SearchURL: "https://www.cemaco.com/api/search"},
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Config{
		HTTP:    HTTPConfig{Port: 0},
		Vendors: validVendors(),
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_DuplicateVendorID(t *testing.T) {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Vendors: []VendorConfig{
			{ID: "cemaco", SearchURL: "https://a.example.com/search"},
			{ID: "cemaco", SearchURL: "https://b.example.com/search"},
		},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for duplicate vendor id")
	}

	expected := `vendors[1]: duplicate vendor id "cemaco"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_MissingSearchURL(t *testing.T) {
	cfg := Config{
		HTTP:    HTTPConfig{Port: 8080},
		Vendors: []VendorConfig{{ID: "max"}},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing search_url")
	}
}

func TestValidate_DefaultMaxAboveCap(t *testing.T) {
	cfg := Config{
		HTTP:    HTTPConfig{Port: 8080},
		Search:  SearchConfig{DefaultMaxResults: 200, MaxMaxResults: 100},
		Vendors: validVendors(),
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error when default_max_results exceeds max_max_results")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{Vendors: []VendorConfig{{ID: "cemaco", SearchURL: "https://x/search"}}}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Search.VendorTimeoutSec != 30 {
		t.Errorf("expected VendorTimeoutSec=30, got %d", cfg.Search.VendorTimeoutSec)
	}
	if cfg.Search.RetentionSec != 300 {
		t.Errorf("expected RetentionSec=300, got %d", cfg.Search.RetentionSec)
	}
	if cfg.Search.DefaultMaxResults != 50 {
		t.Errorf("expected DefaultMaxResults=50, got %d", cfg.Search.DefaultMaxResults)
	}
	if cfg.Search.MaxMaxResults != 100 {
		t.Errorf("expected MaxMaxResults=100, got %d", cfg.Search.MaxMaxResults)
	}
	if cfg.Search.SubscriberBuffer != 64 {
		t.Errorf("expected SubscriberBuffer=64, got %d", cfg.Search.SubscriberBuffer)
	}
	if cfg.Cache.TTLSec != 600 {
		t.Errorf("expected cache TTLSec=600, got %d", cfg.Cache.TTLSec)
	}
	if cfg.Cache.KeyPrefix != "pricehub:" {
		t.Errorf("expected KeyPrefix='pricehub:', got %q", cfg.Cache.KeyPrefix)
	}
	if cfg.Vendors[0].Currency != "GTQ" || cfg.Vendors[0].Country != "GT" {
		t.Errorf("expected vendor defaults GTQ/GT, got %q/%q", cfg.Vendors[0].Currency, cfg.Vendors[0].Country)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:   HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Search: SearchConfig{VendorTimeoutSec: 5, RetentionSec: 60, DefaultMaxResults: 10, MaxMaxResults: 20, SubscriberBuffer: 8, HeartbeatSec: 5},
		Cache:  CacheConfig{TTLSec: 120, KeyPrefix: "custom:"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Search.VendorTimeoutSec != 5 {
		t.Errorf("expected VendorTimeoutSec=5, got %d", cfg.Search.VendorTimeoutSec)
	}
	if cfg.Cache.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Cache.KeyPrefix)
	}
}

func TestCacheConfig_Enabled(t *testing.T) {
	if (CacheConfig{}).Enabled() {
		t.Error("cache without addrs must be disabled")
	}
	if !(CacheConfig{Addrs: []string{"localhost:6379"}}).Enabled() {
		t.Error("cache with addrs must be enabled")
	}
}

func TestVendorConfig_IsActive(t *testing.T) {
	if !(VendorConfig{}).IsActive() {
		t.Error("active must default to true")
	}
	if (VendorConfig{Active: boolPtr(false)}).IsActive() {
		t.Error("explicit active=false must be honored")
	}
}
