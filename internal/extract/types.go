// Package extract defines the core types shared across the extraction pipeline.
package extract

import (
	"time"
)

// Source identifies how a URL was discovered.
type Source string

// Discovery sources, ordered roughly by trustworthiness.
const (
	SourceSitemap  Source = "sitemap"
	SourceHomepage Source = "homepage"
	SourcePattern  Source = "pattern"
	SourceBlog     Source = "blog"
	SourceCrawl    Source = "crawl"
)

// Strategy names a fetch capability tier.
type Strategy string

// Supported fetch strategies, lightest first.
const (
	StrategyStatic  Strategy = "static"
	StrategyDynamic Strategy = "dynamic"
	StrategySPA     Strategy = "spa"
)

// DiscoveredURL is one candidate page found during discovery. Instances are
// immutable after discovery except for priority-based reordering of the slice.
type DiscoveredURL struct {
	URL        string     `json:"url"`
	Title      string     `json:"title,omitempty"`
	Priority   float64    `json:"priority"`
	Source     Source     `json:"source"`
	LastMod    *time.Time `json:"last_mod,omitempty"`
	ChangeFreq string     `json:"change_freq,omitempty"`
}

// SocialLink is a profile link keyed by platform for dedup.
type SocialLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// TeamMember is a person extracted from a team or about page.
type TeamMember struct {
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Bio      string `json:"bio,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// Product is a product or service offering.
type Product struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Testimonial is a customer quote attributed to a name.
type Testimonial struct {
	Name  string `json:"name"`
	Quote string `json:"quote"`
	Title string `json:"title,omitempty"`
}

// BrandAssets captures visual identity signals from a page.
type BrandAssets struct {
	Colors  []string `json:"colors,omitempty"`
	Fonts   []string `json:"fonts,omitempty"`
	LogoURL string   `json:"logo_url,omitempty"`
}

// ContactInfo holds contact fields deduplicated by exact value.
type ContactInfo struct {
	Emails    []string `json:"emails,omitempty"`
	Phones    []string `json:"phones,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
}

// Entities is the structured payload extracted from a single page.
type Entities struct {
	Brand        BrandAssets   `json:"brand"`
	Contact      ContactInfo   `json:"contact"`
	SocialLinks  []SocialLink  `json:"social_links,omitempty"`
	TeamMembers  []TeamMember  `json:"team_members,omitempty"`
	Products     []Product     `json:"products,omitempty"`
	Testimonials []Testimonial `json:"testimonials,omitempty"`
	Images       []string      `json:"images,omitempty"`
}

// FieldCount returns how many top-level entity groups carry data. The
// validator uses this as its structured-coverage signal.
func (e Entities) FieldCount() int {
	n := 0
	if len(e.Brand.Colors) > 0 || len(e.Brand.Fonts) > 0 || e.Brand.LogoURL != "" {
		n++
	}
	if len(e.Contact.Emails) > 0 || len(e.Contact.Phones) > 0 || len(e.Contact.Addresses) > 0 {
		n++
	}
	if len(e.SocialLinks) > 0 {
		n++
	}
	if len(e.TeamMembers) > 0 {
		n++
	}
	if len(e.Products) > 0 {
		n++
	}
	if len(e.Testimonials) > 0 {
		n++
	}
	if len(e.Images) > 0 {
		n++
	}
	return n
}

// ExpectedFieldCount is the number of entity groups FieldCount can report.
const ExpectedFieldCount = 7

// PageRecord is the result of fetching one discovered URL. Records are never
// mutated in place; a higher-quality record replaces a lower-quality one at
// the same position in the ordered result slice.
type PageRecord struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	// HTML preserves the raw markup for blob snapshots and link-context
	// heuristics that the extracted text cannot answer.
	HTML      string    `json:"-"`
	Strategy  Strategy  `json:"strategy"`
	Entities  Entities  `json:"entities"`
	Errors    []string  `json:"errors,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// FlaggedPage marks a page index that scored below the quality threshold.
type FlaggedPage struct {
	Index  int    `json:"index"`
	URL    string `json:"url"`
	Score  float64
	Reason string `json:"reason"`
}

// ValidationReport partitions fetched pages into accepted and flagged sets.
type ValidationReport struct {
	Accepted         []int         `json:"accepted"`
	NeedsEnhancement []FlaggedPage `json:"needs_enhancement"`
	AverageScore     float64       `json:"average_score"`
}

// DatasetMetadata summarizes one pipeline run.
type DatasetMetadata struct {
	Domain             string   `json:"domain"`
	PagesAttempted     int      `json:"pages_attempted"`
	PagesProcessed     int      `json:"pages_processed"`
	DurationMs         int64    `json:"duration_ms"`
	ValidationScore    float64  `json:"validation_score"`
	EnhancementCount   int      `json:"enhancement_count"`
	Scraper            Strategy `json:"scraper"`
	PhasesRun          []string `json:"phases_run"`
	BrandGuidelinesURL string   `json:"brand_guidelines_url,omitempty"`
}

// AggregatedDataset is the deduplicated union of entities across every final
// page record, plus run metadata.
type AggregatedDataset struct {
	Brand        BrandAssets     `json:"brand"`
	Contact      ContactInfo     `json:"contact"`
	SocialLinks  []SocialLink    `json:"social_links,omitempty"`
	TeamMembers  []TeamMember    `json:"team_members,omitempty"`
	Products     []Product       `json:"products,omitempty"`
	Testimonials []Testimonial   `json:"testimonials,omitempty"`
	Images       []string        `json:"images,omitempty"`
	Metadata     DatasetMetadata `json:"metadata"`
}

// Mode selects how the orchestrator treats prior session state.
type Mode string

// Extraction modes accepted through the API.
const (
	ModeInitial     Mode = "initial"
	ModeDynamic     Mode = "dynamic"
	ModeIncremental Mode = "incremental"
)

// Options are the per-run knobs requested by the caller.
type Options struct {
	MaxPages   int           `json:"max_pages"`
	Timeout    time.Duration `json:"timeout"`
	Mode       Mode          `json:"mode"`
	SkipPhases []string      `json:"skip_phases"`
	Stream     bool          `json:"stream"`
}
