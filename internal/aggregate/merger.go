// Package aggregate unions and deduplicates per-page entities into one
// dataset.
package aggregate

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/brandforge/siteharvest/internal/extract"
)

// Config caps the merged collections.
type Config struct {
	MaxColors int // default 8
	MaxFonts  int // default 5
	MaxImages int // default 50
}

func (c Config) withDefaults() Config {
	if c.MaxColors <= 0 {
		c.MaxColors = 8
	}
	if c.MaxFonts <= 0 {
		c.MaxFonts = 5
	}
	if c.MaxImages <= 0 {
		c.MaxImages = 50
	}
	return c
}

var (
	guidelinesPhraseRe = regexp.MustCompile(`(?i)(brand|style|design)[\s-]+(guide|guidelines|manual|standards)`)
	pdfLinkRe          = regexp.MustCompile(`href=["']([^"']+\.pdf(?:[?#][^"']*)?)["']`)
)

// phraseWindow is how far, in bytes of raw HTML, a guidelines phrase may sit
// from a PDF link and still count as co-located.
const phraseWindow = 400

// Merge unions entity collections across the final ordered page records.
// Dedup is first-occurrence-wins throughout: social links by platform, team
// members, products and testimonials by name, contact fields and images by
// exact value. Brand colors and fonts from the homepage are prepended ahead
// of other pages' values before truncation so homepage branding dominates.
// Nil slots are skipped.
func Merge(records []*extract.PageRecord, homepageURL string, cfg Config) extract.AggregatedDataset {
	cfg = cfg.withDefaults()
	out := extract.AggregatedDataset{}

	var homepageColors, homepageFonts, otherColors, otherFonts []string
	seenSocial := make(map[string]struct{})
	seenTeam := make(map[string]struct{})
	seenProduct := make(map[string]struct{})
	seenTestimonial := make(map[string]struct{})

	for _, rec := range records {
		if rec == nil {
			continue
		}
		ent := rec.Entities

		if isHomepage(rec.URL, homepageURL) {
			homepageColors = append(homepageColors, ent.Brand.Colors...)
			homepageFonts = append(homepageFonts, ent.Brand.Fonts...)
		} else {
			otherColors = append(otherColors, ent.Brand.Colors...)
			otherFonts = append(otherFonts, ent.Brand.Fonts...)
		}
		if out.Brand.LogoURL == "" && ent.Brand.LogoURL != "" {
			out.Brand.LogoURL = ent.Brand.LogoURL
		}

		out.Contact.Emails = appendUnique(out.Contact.Emails, ent.Contact.Emails, 0)
		out.Contact.Phones = appendUnique(out.Contact.Phones, ent.Contact.Phones, 0)
		out.Contact.Addresses = appendUnique(out.Contact.Addresses, ent.Contact.Addresses, 0)

		for _, link := range ent.SocialLinks {
			if _, dup := seenSocial[link.Platform]; dup {
				continue
			}
			seenSocial[link.Platform] = struct{}{}
			out.SocialLinks = append(out.SocialLinks, link)
		}
		for _, member := range ent.TeamMembers {
			key := normalizeName(member.Name)
			if _, dup := seenTeam[key]; dup || key == "" {
				continue
			}
			seenTeam[key] = struct{}{}
			out.TeamMembers = append(out.TeamMembers, member)
		}
		for _, product := range ent.Products {
			key := normalizeName(product.Name)
			if _, dup := seenProduct[key]; dup || key == "" {
				continue
			}
			seenProduct[key] = struct{}{}
			out.Products = append(out.Products, product)
		}
		for _, testimonial := range ent.Testimonials {
			key := normalizeName(testimonial.Name)
			if _, dup := seenTestimonial[key]; dup || key == "" {
				continue
			}
			seenTestimonial[key] = struct{}{}
			out.Testimonials = append(out.Testimonials, testimonial)
		}

		out.Images = appendUnique(out.Images, ent.Images, cfg.MaxImages)

		if out.Metadata.BrandGuidelinesURL == "" {
			out.Metadata.BrandGuidelinesURL = findGuidelinesPDF(rec)
		}
	}

	out.Brand.Colors = truncateUnique(append(homepageColors, otherColors...), cfg.MaxColors)
	out.Brand.Fonts = truncateUnique(append(homepageFonts, otherFonts...), cfg.MaxFonts)
	return out
}

// findGuidelinesPDF looks for a brand/style/design guidelines phrase
// co-located with a PDF link in the page markup. Relative PDF URLs resolve
// against the page's own origin; the first hit wins.
func findGuidelinesPDF(rec *extract.PageRecord) string {
	if rec.HTML == "" {
		return ""
	}
	links := pdfLinkRe.FindAllStringSubmatchIndex(rec.HTML, -1)
	if len(links) == 0 {
		return ""
	}
	for _, loc := range links {
		start := loc[0] - phraseWindow
		if start < 0 {
			start = 0
		}
		end := loc[1] + phraseWindow
		if end > len(rec.HTML) {
			end = len(rec.HTML)
		}
		if !guidelinesPhraseRe.MatchString(rec.HTML[start:end]) {
			continue
		}
		href := rec.HTML[loc[2]:loc[3]]
		if resolved := resolveAgainstPage(rec.URL, href); resolved != "" {
			return resolved
		}
	}
	return ""
}

func resolveAgainstPage(pageURL, href string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func isHomepage(pageURL, homepageURL string) bool {
	if homepageURL == "" {
		return false
	}
	a, errA := extract.NormalizeURL(pageURL)
	b, errB := extract.NormalizeURL(homepageURL)
	return errA == nil && errB == nil && a == b
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// appendUnique appends items not already present, first occurrence wins;
// limit of 0 means unbounded.
func appendUnique(dst, src []string, limit int) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range src {
		if limit > 0 && len(dst) >= limit {
			break
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}

func truncateUnique(values []string, limit int) []string {
	return appendUnique(nil, values, limit)
}
