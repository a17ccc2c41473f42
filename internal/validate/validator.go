// Package validate scores fetched pages and partitions them into accepted
// and needs-enhancement sets. Scoring is a pure function of the input: no
// I/O, no clock, identical input always yields identical output.
package validate

import (
	"strings"

	"github.com/brandforge/siteharvest/internal/extract"
)

// Flag reasons attached to below-threshold pages.
const (
	ReasonTooShort     = "content too short"
	ReasonNoStructured = "no structured data found"
	ReasonNoTitle      = "missing title"
	ReasonLowScore     = "low quality score"
)

// Config sets the scoring thresholds.
type Config struct {
	// MinContentLength is the character count below which a page is
	// considered thin (default 200).
	MinContentLength int
	// Threshold is the score below which a page is flagged (default 0.5).
	Threshold float64
}

func (c Config) withDefaults() Config {
	if c.MinContentLength <= 0 {
		c.MinContentLength = 200
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.5
	}
	return c
}

// Score weights: content length dominates, structural markers and entity
// coverage split the rest.
const (
	lengthWeight    = 0.4
	titleWeight     = 0.15
	substanceWeight = 0.15
	entityWeight    = 0.3

	substantiveWordCount = 50
)

// Run scores every non-nil page and returns the partition. Nil slots (pages
// that already failed to fetch) are excluded from both sets; there is
// nothing for enhancement to improve on.
func Run(pages []*extract.PageRecord, cfg Config) extract.ValidationReport {
	cfg = cfg.withDefaults()
	report := extract.ValidationReport{}

	scored := 0
	total := 0.0
	for i, page := range pages {
		if page == nil {
			continue
		}
		score := Score(*page, cfg)
		scored++
		total += score

		if score >= cfg.Threshold {
			report.Accepted = append(report.Accepted, i)
			continue
		}
		report.NeedsEnhancement = append(report.NeedsEnhancement, extract.FlaggedPage{
			Index:  i,
			URL:    page.URL,
			Score:  score,
			Reason: flagReason(*page, cfg),
		})
	}
	if scored > 0 {
		report.AverageScore = total / float64(scored)
	}
	return report
}

// Score computes the quality score in [0,1] for one page.
func Score(page extract.PageRecord, cfg Config) float64 {
	cfg = cfg.withDefaults()
	score := 0.0

	length := len(page.Content)
	if length >= cfg.MinContentLength {
		score += lengthWeight
	} else {
		score += lengthWeight * float64(length) / float64(cfg.MinContentLength)
	}

	if strings.TrimSpace(page.Title) != "" {
		score += titleWeight
	}
	if len(strings.Fields(page.Content)) >= substantiveWordCount {
		score += substanceWeight
	}

	score += entityWeight * float64(page.Entities.FieldCount()) / float64(extract.ExpectedFieldCount)
	if score > 1 {
		score = 1
	}
	return score
}

// flagReason picks the most specific human-readable reason for a flag.
func flagReason(page extract.PageRecord, cfg Config) string {
	switch {
	case len(page.Content) < cfg.MinContentLength:
		return ReasonTooShort
	case page.Entities.FieldCount() == 0:
		return ReasonNoStructured
	case strings.TrimSpace(page.Title) == "":
		return ReasonNoTitle
	default:
		return ReasonLowScore
	}
}
