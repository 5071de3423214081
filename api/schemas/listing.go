package schemas

import (
	"encoding/json"
	"time"
)

// ListingStatus tracks where a listing sits in the refresh lifecycle.
type ListingStatus string

const (
	// ListingPending is the default for rows created outside the extractor.
	ListingPending ListingStatus = "pending"
	// ListingActive marks a listing seen on the seller's collection page.
	ListingActive ListingStatus = "active"
	// ListingRefreshed marks a listing whose last edit/save cycle succeeded.
	ListingRefreshed ListingStatus = "refreshed"
	// ListingFailed marks a listing whose last edit/save cycle failed.
	ListingFailed ListingStatus = "failed"
)

// ListingRecord is one marketplace listing keyed by its external item id.
// Price is kept as free text because the marketplace renders it in the
// seller's locale.
type ListingRecord struct {
	ItemID          string          `json:"item_id"`
	URL             string          `json:"url"`
	Title           string          `json:"title"`
	Price           string          `json:"price"`
	Location        string          `json:"location"`
	Status          ListingStatus   `json:"status"`
	IsPublic        bool            `json:"is_public"`
	IsVisible       bool            `json:"is_visible"`
	LastRefreshedAt *time.Time      `json:"last_refreshed_at,omitempty"`
	RefreshCount    int             `json:"refresh_count"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ListingMetadata is the raw context captured alongside a scraped card.
type ListingMetadata struct {
	URL         string    `json:"url"`
	ScrapedAt   time.Time `json:"scraped_at"`
	ElementText string    `json:"element_text"`
}

// Stats summarises the listings table for the dashboard.
type Stats struct {
	TotalListings     int     `json:"total_listings"`
	PublicListings    int     `json:"public_listings"`
	PendingListings   int     `json:"pending_listings"`
	RefreshedListings int     `json:"refreshed_listings"`
	SuccessRate       float64 `json:"success_rate"`
}
