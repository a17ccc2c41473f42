package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brandforge/siteharvest/internal/extract"
)

func TestSelect(t *testing.T) {
	t.Parallel()

	cases := []struct {
		tech string
		want extract.Strategy
	}{
		{"wordpress", extract.StrategyStatic},
		{"WordPress", extract.StrategyStatic},
		{"hugo", extract.StrategyStatic},
		{"react", extract.StrategySPA},
		{"next", extract.StrategySPA},
		{"", extract.StrategyDynamic},
		{"somethingcustom", extract.StrategyDynamic},
		{"  shopify  ", extract.StrategyStatic},
	}
	for _, tc := range cases {
		got := Select(extract.SiteMetadata{Technology: tc.tech})
		assert.Equal(t, tc.want, got, "technology %q", tc.tech)
	}
}

func TestSelectIsPure(t *testing.T) {
	t.Parallel()

	meta := extract.SiteMetadata{Technology: "vue"}
	first := Select(meta)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Select(meta))
	}
}

func TestHeavier(t *testing.T) {
	t.Parallel()

	assert.Equal(t, extract.StrategyDynamic, Heavier(extract.StrategyStatic))
	assert.Equal(t, extract.StrategySPA, Heavier(extract.StrategyDynamic))
	assert.Equal(t, extract.StrategySPA, Heavier(extract.StrategySPA))
}
