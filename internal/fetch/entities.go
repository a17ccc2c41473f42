package fetch

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/brandforge/siteharvest/internal/extract"
)

var (
	hexColorRe   = regexp.MustCompile(`#(?:[0-9a-fA-F]{3}){1,2}\b`)
	fontFamilyRe = regexp.MustCompile(`font-family\s*:\s*([^;}]+)`)
	emailRe      = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// platformHosts maps social hostnames to platform labels used as dedup keys.
var platformHosts = map[string]string{
	"facebook.com":  "facebook",
	"twitter.com":   "twitter",
	"x.com":         "twitter",
	"instagram.com": "instagram",
	"linkedin.com":  "linkedin",
	"youtube.com":   "youtube",
	"tiktok.com":    "tiktok",
	"pinterest.com": "pinterest",
	"threads.net":   "threads",
	"github.com":    "github",
}

const (
	maxImagesPerPage = 30
	maxColorsPerPage = 20
	maxFontsPerPage  = 10
)

// ParsePage extracts the title, visible text, and structured entities from
// raw page HTML. Parse failures degrade to an empty result; extraction is
// best-effort by design.
func ParsePage(pageURL, html string) (title, text string, entities extract.Entities) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", extract.Entities{}
	}
	base, _ := url.Parse(pageURL)

	title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript").Remove()
	text = strings.Join(strings.Fields(doc.Find("body").Text()), " ")

	entities.Brand = parseBrand(doc, base, html)
	entities.Contact = parseContact(doc, text)
	entities.SocialLinks = parseSocialLinks(doc)
	entities.TeamMembers = parseTeamMembers(doc)
	entities.Products = parseProducts(doc, base)
	entities.Testimonials = parseTestimonials(doc)
	entities.Images = parseImages(doc, base)
	return title, text, entities
}

func parseBrand(doc *goquery.Document, base *url.URL, rawHTML string) extract.BrandAssets {
	var brand extract.BrandAssets

	for _, match := range hexColorRe.FindAllString(rawHTML, -1) {
		color := strings.ToLower(match)
		if !containsString(brand.Colors, color) {
			brand.Colors = append(brand.Colors, color)
		}
		if len(brand.Colors) >= maxColorsPerPage {
			break
		}
	}

	for _, match := range fontFamilyRe.FindAllStringSubmatch(rawHTML, -1) {
		family := strings.TrimSpace(strings.Split(match[1], ",")[0])
		family = strings.Trim(family, `"' `)
		if family == "" || strings.HasPrefix(family, "var(") {
			continue
		}
		if !containsString(brand.Fonts, family) {
			brand.Fonts = append(brand.Fonts, family)
		}
		if len(brand.Fonts) >= maxFontsPerPage {
			break
		}
	}

	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, ok := sel.Attr("src")
		if !ok {
			return true
		}
		haystack := strings.ToLower(src + " " + sel.AttrOr("alt", "") + " " + sel.AttrOr("class", ""))
		if !strings.Contains(haystack, "logo") {
			return true
		}
		if resolved := resolveRef(base, src); resolved != "" {
			brand.LogoURL = resolved
			return false
		}
		return true
	})
	return brand
}

func parseContact(doc *goquery.Document, text string) extract.ContactInfo {
	var contact extract.ContactInfo

	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, sel *goquery.Selection) {
		href := sel.AttrOr("href", "")
		email := strings.TrimPrefix(href, "mailto:")
		if at := strings.IndexByte(email, '?'); at >= 0 {
			email = email[:at]
		}
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" && !containsString(contact.Emails, email) {
			contact.Emails = append(contact.Emails, email)
		}
	})
	for _, email := range emailRe.FindAllString(text, 10) {
		email = strings.ToLower(email)
		if !containsString(contact.Emails, email) {
			contact.Emails = append(contact.Emails, email)
		}
	}

	doc.Find(`a[href^="tel:"]`).Each(func(_ int, sel *goquery.Selection) {
		phone := strings.TrimSpace(strings.TrimPrefix(sel.AttrOr("href", ""), "tel:"))
		if phone != "" && !containsString(contact.Phones, phone) {
			contact.Phones = append(contact.Phones, phone)
		}
	})

	doc.Find("address").Each(func(_ int, sel *goquery.Selection) {
		addr := strings.Join(strings.Fields(sel.Text()), " ")
		if addr != "" && !containsString(contact.Addresses, addr) {
			contact.Addresses = append(contact.Addresses, addr)
		}
	})
	return contact
}

func parseSocialLinks(doc *goquery.Document) []extract.SocialLink {
	var links []extract.SocialLink
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := sel.AttrOr("href", "")
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		platform, ok := platformHosts[host]
		if !ok {
			return
		}
		if _, dup := seen[platform]; dup {
			return
		}
		seen[platform] = struct{}{}
		links = append(links, extract.SocialLink{Platform: platform, URL: href})
	})
	return links
}

func parseTeamMembers(doc *goquery.Document) []extract.TeamMember {
	var members []extract.TeamMember
	doc.Find(`[class*="team"] [class*="member"], [class*="team-member"], [class*="staff"]`).
		Each(func(_ int, sel *goquery.Selection) {
			name := firstText(sel, "h2, h3, h4, [class*='name']")
			if name == "" {
				return
			}
			members = append(members, extract.TeamMember{
				Name:     name,
				Role:     firstText(sel, "[class*='role'], [class*='title'], [class*='position'], p"),
				PhotoURL: sel.Find("img").First().AttrOr("src", ""),
			})
		})
	return members
}

func parseProducts(doc *goquery.Document, base *url.URL) []extract.Product {
	var products []extract.Product
	doc.Find(`[class*="product"], [class*="service-card"], [class*="pricing"] [class*="plan"]`).
		Each(func(_ int, sel *goquery.Selection) {
			name := firstText(sel, "h2, h3, h4, [class*='name'], [class*='title']")
			if name == "" {
				return
			}
			product := extract.Product{
				Name:        name,
				Description: firstText(sel, "p, [class*='description']"),
			}
			if href, ok := sel.Find("a[href]").First().Attr("href"); ok {
				product.URL = resolveRef(base, href)
			}
			if src, ok := sel.Find("img[src]").First().Attr("src"); ok {
				product.ImageURL = resolveRef(base, src)
			}
			products = append(products, product)
		})
	return products
}

func parseTestimonials(doc *goquery.Document) []extract.Testimonial {
	var testimonials []extract.Testimonial
	doc.Find(`blockquote, [class*="testimonial"], [class*="review"]`).
		Each(func(_ int, sel *goquery.Selection) {
			quote := firstText(sel, "p, [class*='quote'], [class*='text']")
			if quote == "" {
				quote = strings.Join(strings.Fields(sel.Clone().Children().Remove().End().Text()), " ")
			}
			name := firstText(sel, "cite, footer, [class*='author'], [class*='name']")
			if quote == "" || name == "" {
				return
			}
			testimonials = append(testimonials, extract.Testimonial{Name: name, Quote: quote})
		})
	return testimonials
}

func parseImages(doc *goquery.Document, base *url.URL) []string {
	var images []string
	doc.Find("img[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src := sel.AttrOr("src", "")
		if strings.HasPrefix(src, "data:") {
			return true
		}
		resolved := resolveRef(base, src)
		if resolved != "" && !containsString(images, resolved) {
			images = append(images, resolved)
		}
		return len(images) < maxImagesPerPage
	})
	return images
}

func firstText(sel *goquery.Selection, selector string) string {
	return strings.Join(strings.Fields(sel.Find(selector).First().Text()), " ")
}

func resolveRef(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
