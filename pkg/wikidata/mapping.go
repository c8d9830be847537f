package wikidata

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// PropertyMapping maps crawl-data fields onto Wikibase property IDs so the
// claim set can be retargeted at another Wikibase instance without code
// changes.
type PropertyMapping struct {
	OfficialWebsite string `yaml:"official_website"`
	InstanceOf      string `yaml:"instance_of"`
	BusinessItem    string `yaml:"business_item"`
	Email           string `yaml:"email"`
	Phone           string `yaml:"phone"`
	Country         string `yaml:"country"`
	Locality        string `yaml:"locality"`
	SocialProfile   string `yaml:"social_profile"`
	Industry        string `yaml:"industry"`
}

// DefaultPropertyMapping returns the wikidata.org property IDs.
func DefaultPropertyMapping() PropertyMapping {
	return PropertyMapping{
		OfficialWebsite: "P856",
		InstanceOf:      "P31",
		BusinessItem:    "Q4830453", // business
		Email:           "P968",
		Phone:           "P1329",
		Country:         "P17",
		Locality:        "P131",
		SocialProfile:   "P2002",
		Industry:        "P452",
	}
}

// LoadPropertyMapping reads a mapping file, overlaying it on the defaults so
// partial files stay valid.
func LoadPropertyMapping(path string) (PropertyMapping, error) {
	m := DefaultPropertyMapping()
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return m, eris.Wrapf(err, "wikidata: read mapping %s", path)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, eris.Wrapf(err, "wikidata: parse mapping %s", path)
	}
	return m, nil
}
