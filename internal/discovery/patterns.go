package discovery

import (
	"github.com/brandforge/siteharvest/internal/extract"
)

// conventionalPaths are paths most business sites expose. Probing them is
// guesswork, so this step only runs when Config.EnablePatterns is set; the
// final reachability check then filters out the misses.
var conventionalPaths = []string{
	"/about",
	"/about-us",
	"/contact",
	"/contact-us",
	"/services",
	"/products",
	"/team",
	"/our-team",
	"/pricing",
	"/portfolio",
	"/case-studies",
	"/testimonials",
	"/faq",
	"/careers",
}

// fromPatterns adds conventional paths as low-confidence candidates.
func (c *Coordinator) fromPatterns(base string, set *urlSet) {
	for _, path := range conventionalPaths {
		candidate := base + path
		set.Add(extract.DiscoveredURL{
			URL:      candidate,
			Priority: pathPriority(candidate),
			Source:   extract.SourcePattern,
		})
	}
}
