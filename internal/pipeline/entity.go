package pipeline

import (
	"fmt"
	"strings"

	"github.com/lumenreach/visibility-cli/internal/model"
	"github.com/lumenreach/visibility-cli/pkg/wikidata"
)

// AssembleEntity builds the full candidate knowledge-graph entity from crawl
// data. The entity is always fully assembled, whether or not it will be
// auto-published, so manual storage gets a complete snapshot.
func AssembleEntity(business *model.Business, mapping wikidata.PropertyMapping) wikidata.Entity {
	name := targetName(business)
	entity := wikidata.Entity{
		Labels:       map[string]string{"en": name},
		Descriptions: map[string]string{"en": entityDescription(business)},
	}
	if business.Name != "" && business.Name != name {
		entity.Aliases = map[string][]string{"en": {business.Name}}
	}

	claims := []wikidata.Claim{
		{Property: mapping.InstanceOf, Value: mapping.BusinessItem, DataType: "wikibase-item"},
		{Property: mapping.OfficialWebsite, Value: business.URL, DataType: "url"},
	}

	data := business.CrawlData
	if data != nil {
		if data.Email != "" {
			claims = append(claims, wikidata.Claim{
				Property: mapping.Email, Value: "mailto:" + data.Email, DataType: "url",
			})
		}
		if data.Phone != "" {
			claims = append(claims, wikidata.Claim{
				Property: mapping.Phone, Value: data.Phone, DataType: "string",
			})
		}
		if data.Location.Country != "" {
			claims = append(claims, wikidata.Claim{
				Property: mapping.Country, Value: data.Location.Country, DataType: "string",
			})
		}
		if data.Location.City != "" {
			claims = append(claims, wikidata.Claim{
				Property: mapping.Locality, Value: data.Location.City, DataType: "string",
			})
		}
		for _, link := range data.SocialLinks {
			claims = append(claims, wikidata.Claim{
				Property: mapping.SocialProfile, Value: link, DataType: "url",
			})
		}
		for _, tag := range data.Tags {
			claims = append(claims, wikidata.Claim{
				Property: mapping.Industry, Value: tag, DataType: "string",
			})
		}
	}

	entity.Claims = claims
	return entity
}

func entityDescription(business *model.Business) string {
	data := business.CrawlData
	if data == nil {
		return "business"
	}

	var parts []string
	if len(data.Tags) > 0 {
		parts = append(parts, strings.ToLower(data.Tags[0])+" business")
	} else {
		parts = append(parts, "business")
	}
	if data.Location.City != "" {
		loc := data.Location.City
		if data.Location.Region != "" {
			loc = fmt.Sprintf("%s, %s", loc, data.Location.Region)
		}
		parts = append(parts, "in "+loc)
	}
	return strings.Join(parts, " ")
}
