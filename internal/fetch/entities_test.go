package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aboutPageHTML = `<!DOCTYPE html>
<html>
<head>
<title>About Acme Robotics</title>
<style>
body { font-family: "Inter", sans-serif; color: #1a2b3c; }
h1 { color: #FF0000; }
</style>
</head>
<body>
<header><img src="/img/acme-logo.svg" alt="Acme logo"></header>
<h1>We build robots</h1>
<p>Reach us at <a href="mailto:hello@acme.test?subject=hi">hello@acme.test</a>
or call <a href="tel:+15551234567">our office</a>. Press: press@acme.test</p>
<address>1 Factory Lane, Springfield</address>
<div class="team-grid">
  <div class="team-member"><h3>Jane Smith</h3><p class="role">CEO</p><img src="/img/jane.jpg"></div>
  <div class="team-member"><h3>Bob Lee</h3><p class="role">CTO</p></div>
</div>
<div class="product-card"><h3>Palletizer 3000</h3><p>Stacks anything.</p><a href="/products/palletizer">Learn more</a></div>
<blockquote><p class="quote">Acme doubled our throughput.</p><cite>Pat Doe</cite></blockquote>
<footer>
  <a href="https://www.twitter.com/acme">Twitter</a>
  <a href="https://linkedin.com/company/acme">LinkedIn</a>
  <a href="https://twitter.com/acme-alt">Alt Twitter</a>
</footer>
<img src="/img/hero.png">
<script>var ignored = "text in scripts must not leak";</script>
</body>
</html>`

func TestParsePageTitleAndText(t *testing.T) {
	t.Parallel()

	title, text, _ := ParsePage("https://acme.test/about", aboutPageHTML)
	assert.Equal(t, "About Acme Robotics", title)
	assert.Contains(t, text, "We build robots")
	assert.NotContains(t, text, "must not leak", "script bodies are stripped from visible text")
	assert.NotContains(t, text, "font-family", "style bodies are stripped from visible text")
}

func TestParsePageBrand(t *testing.T) {
	t.Parallel()

	_, _, ent := ParsePage("https://acme.test/about", aboutPageHTML)
	assert.Contains(t, ent.Brand.Colors, "#1a2b3c")
	assert.Contains(t, ent.Brand.Colors, "#ff0000", "colors are lowercased")
	assert.Contains(t, ent.Brand.Fonts, "Inter")
	assert.Equal(t, "https://acme.test/img/acme-logo.svg", ent.Brand.LogoURL)
}

func TestParsePageContact(t *testing.T) {
	t.Parallel()

	_, _, ent := ParsePage("https://acme.test/about", aboutPageHTML)
	assert.Contains(t, ent.Contact.Emails, "hello@acme.test")
	assert.Contains(t, ent.Contact.Emails, "press@acme.test")
	assert.Len(t, ent.Contact.Emails, 2, "mailto query suffix stripped, duplicates collapsed")
	assert.Equal(t, []string{"+15551234567"}, ent.Contact.Phones)
	assert.Equal(t, []string{"1 Factory Lane, Springfield"}, ent.Contact.Addresses)
}

func TestParsePageSocialLinksDedupByPlatform(t *testing.T) {
	t.Parallel()

	_, _, ent := ParsePage("https://acme.test/about", aboutPageHTML)
	platforms := make(map[string]string)
	for _, link := range ent.SocialLinks {
		platforms[link.Platform] = link.URL
	}
	assert.Equal(t, "https://www.twitter.com/acme", platforms["twitter"], "first twitter link wins")
	assert.Equal(t, "https://linkedin.com/company/acme", platforms["linkedin"])
	assert.Len(t, ent.SocialLinks, 2)
}

func TestParsePageStructured(t *testing.T) {
	t.Parallel()

	_, _, ent := ParsePage("https://acme.test/about", aboutPageHTML)

	require.Len(t, ent.TeamMembers, 2)
	assert.Equal(t, "Jane Smith", ent.TeamMembers[0].Name)
	assert.Equal(t, "CEO", ent.TeamMembers[0].Role)

	require.Len(t, ent.Products, 1)
	assert.Equal(t, "Palletizer 3000", ent.Products[0].Name)
	assert.Equal(t, "https://acme.test/products/palletizer", ent.Products[0].URL)

	require.Len(t, ent.Testimonials, 1)
	assert.Equal(t, "Pat Doe", ent.Testimonials[0].Name)
	assert.Equal(t, "Acme doubled our throughput.", ent.Testimonials[0].Quote)
}

func TestParsePageImages(t *testing.T) {
	t.Parallel()

	_, _, ent := ParsePage("https://acme.test/about", aboutPageHTML)
	assert.Contains(t, ent.Images, "https://acme.test/img/hero.png")
	for _, img := range ent.Images {
		assert.NotContains(t, img, "data:", "data URIs are excluded")
	}
}

func TestParsePageEmptyInput(t *testing.T) {
	t.Parallel()

	title, text, ent := ParsePage("https://acme.test", "")
	assert.Empty(t, title)
	assert.Empty(t, text)
	assert.Zero(t, ent.FieldCount())
}
