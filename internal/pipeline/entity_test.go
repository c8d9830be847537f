package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenreach/visibility-cli/internal/model"
	"github.com/lumenreach/visibility-cli/pkg/wikidata"
)

func TestAssembleEntity(t *testing.T) {
	business := testBusiness()
	business.CrawlData.Email = "info@acmeplumbing.example"
	business.CrawlData.Phone = "+1-503-555-0100"
	business.CrawlData.Location.Country = "United States"
	business.CrawlData.SocialLinks = []string{"https://linkedin.com/company/acme-plumbing"}

	entity := AssembleEntity(business, wikidata.DefaultPropertyMapping())

	assert.Equal(t, "Acme Plumbing", entity.Label("en"))
	assert.Contains(t, entity.Descriptions["en"], "plumbing business")
	assert.Contains(t, entity.Descriptions["en"], "Portland, OR")

	assert.True(t, entity.HasClaim("P31"))  // instance of
	assert.True(t, entity.HasClaim("P856")) // official website
	assert.True(t, entity.HasClaim("P968")) // email
	assert.True(t, entity.HasClaim("P1329"))
	assert.True(t, entity.HasClaim("P17"))
	assert.True(t, entity.HasClaim("P131"))
	assert.True(t, entity.HasClaim("P2002"))
	assert.True(t, entity.HasClaim("P452"))

	for _, c := range entity.Claims {
		if c.Property == "P968" {
			assert.Equal(t, "mailto:info@acmeplumbing.example", c.Value)
		}
	}
}

func TestAssembleEntitySparseCrawlData(t *testing.T) {
	business := &model.Business{
		ID:        "biz-2",
		Name:      "Bare Minimum LLC",
		URL:       "https://bareminimum.example",
		CrawlData: &model.CrawlData{Name: "Bare Minimum"},
	}

	entity := AssembleEntity(business, wikidata.DefaultPropertyMapping())

	assert.Equal(t, "Bare Minimum", entity.Label("en"))
	require.Contains(t, entity.Aliases, "en")
	assert.Contains(t, entity.Aliases["en"], "Bare Minimum LLC")
	assert.Equal(t, "business", entity.Descriptions["en"])
	// Only the two unconditional claims.
	assert.Len(t, entity.Claims, 2)
	assert.False(t, entity.HasClaim("P968"))
}

func TestAssembleEntityCustomMapping(t *testing.T) {
	mapping := wikidata.DefaultPropertyMapping()
	mapping.OfficialWebsite = "P99"

	entity := AssembleEntity(testBusiness(), mapping)
	assert.True(t, entity.HasClaim("P99"))
	assert.False(t, entity.HasClaim("P856"))
}
