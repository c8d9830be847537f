package wikidata

// Entity is a candidate knowledge-graph entity: labels, descriptions, and
// typed claims assembled from crawl and fingerprint data.
type Entity struct {
	Labels       map[string]string   `json:"labels"`       // language → label
	Descriptions map[string]string   `json:"descriptions"` // language → description
	Aliases      map[string][]string `json:"aliases,omitempty"`
	Claims       []Claim             `json:"claims"`
}

// Claim is a single property-value statement on an entity.
type Claim struct {
	Property string `json:"property"` // e.g. "P856" (official website)
	Value    string `json:"value"`
	DataType string `json:"datatype"` // "string", "url", "quantity", "item"
}

// Label returns the entity's label in the given language, falling back to
// English.
func (e *Entity) Label(lang string) string {
	if l, ok := e.Labels[lang]; ok {
		return l
	}
	return e.Labels["en"]
}

// HasClaim reports whether the entity already carries a claim for property.
func (e *Entity) HasClaim(property string) bool {
	for _, c := range e.Claims {
		if c.Property == property {
			return true
		}
	}
	return false
}
