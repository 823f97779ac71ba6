package model

import (
	"strings"
	"time"
)

// SourceKind identifies where a catalog product was ingested from. It is
// resolved once from the raw source tag when the product is normalized.
type SourceKind int

const (
	// SourceUnknown covers manual entries and any tag we do not recognize.
	SourceUnknown SourceKind = iota
	// SourceImport is a product pulled from a marketplace import (ASIN feeds, CSV imports).
	SourceImport
	// SourceStorefront is a product that originated in our own storefront.
	SourceStorefront
)

func (k SourceKind) String() string {
	switch k {
	case SourceImport:
		return "import"
	case SourceStorefront:
		return "storefront"
	default:
		return "unknown"
	}
}

// ParseSource maps a raw source tag onto a SourceKind.
func ParseSource(raw string) SourceKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "import", "amazon", "asin", "rainforest", "keepa", "csv":
		return SourceImport
	case "storefront", "shopify":
		return SourceStorefront
	default:
		return SourceUnknown
	}
}

// NormalizedProduct is the catalog row produced by the normalization layer.
type NormalizedProduct struct {
	ID           string    `json:"id" yaml:"id"`
	ASIN         string    `json:"asin,omitempty" yaml:"asin"`
	Title        string    `json:"title" yaml:"title"`
	Brand        string    `json:"brand,omitempty" yaml:"brand"`
	Category     string    `json:"category,omitempty" yaml:"category"`
	Description  string    `json:"description,omitempty" yaml:"description"`
	MainImage    string    `json:"main_image,omitempty" yaml:"main_image"`
	Images       []string  `json:"images,omitempty" yaml:"images"`
	Rating       *float64  `json:"rating,omitempty" yaml:"rating"`
	RatingsTotal *int      `json:"ratings_total,omitempty" yaml:"ratings_total"`
	Status       string    `json:"status,omitempty" yaml:"status"`
	Source       string    `json:"source,omitempty" yaml:"source"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// SourceKind returns the resolved ingestion source of the product.
func (p NormalizedProduct) SourceKind() SourceKind {
	return ParseSource(p.Source)
}

// ImageCount returns the number of distinct product images, counting the
// main image when it is not already part of Images.
func (p NormalizedProduct) ImageCount() int {
	n := 0
	seen := make(map[string]bool, len(p.Images)+1)
	for _, img := range p.Images {
		img = strings.TrimSpace(img)
		if img == "" || seen[img] {
			continue
		}
		seen[img] = true
		n++
	}
	if main := strings.TrimSpace(p.MainImage); main != "" && !seen[main] {
		n++
	}
	return n
}

// NormalizedPriceSnapshot is the latest competitor price observation for a product.
type NormalizedPriceSnapshot struct {
	CurrentPrice *float64 `json:"current_price,omitempty" yaml:"current_price"`
	CostPrice    *float64 `json:"cost_price,omitempty" yaml:"cost_price"`
	BSRRank      *int     `json:"bsr_rank,omitempty" yaml:"bsr_rank"`
	IsPrime      bool     `json:"is_prime" yaml:"is_prime"`
	Availability string   `json:"availability,omitempty" yaml:"availability"`
}

// NormalizedShopifyProduct is the storefront listing for a product. No
// feature reads it yet; it travels with the other snapshots so storefront
// signals can be added without changing signatures.
type NormalizedShopifyProduct struct {
	ID                string    `json:"id" yaml:"id"`
	Handle            string    `json:"handle,omitempty" yaml:"handle"`
	Status            string    `json:"status,omitempty" yaml:"status"`
	VariantCount      int       `json:"variant_count" yaml:"variant_count"`
	InventoryQuantity int       `json:"inventory_quantity" yaml:"inventory_quantity"`
	UpdatedAt         time.Time `json:"updated_at" yaml:"updated_at"`
}

// CatalogEntry bundles a product with its optional price and storefront snapshots.
type CatalogEntry struct {
	Product    NormalizedProduct         `json:"product" yaml:"product"`
	Price      *NormalizedPriceSnapshot  `json:"price,omitempty" yaml:"price"`
	Storefront *NormalizedShopifyProduct `json:"storefront,omitempty" yaml:"storefront"`
}
