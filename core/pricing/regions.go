// Package pricing resolves canonical unit prices from provider catalog
// documents.
//
// Catalogs are bulk JSON offer files fetched over HTTP and cached for a
// day. Resolution is deterministic for a fixed catalog version: the same
// lookup against the same snapshot always yields the same prices and
// confidence.
package pricing

// regionLocations maps provider region codes to the location names the
// catalog uses in product attributes.
var regionLocations = map[string]string{
	"us-east-1":      "US East (N. Virginia)",
	"us-east-2":      "US East (Ohio)",
	"us-west-1":      "US West (N. California)",
	"us-west-2":      "US West (Oregon)",
	"eu-west-1":      "EU (Ireland)",
	"eu-west-2":      "EU (London)",
	"eu-west-3":      "EU (Paris)",
	"eu-central-1":   "EU (Frankfurt)",
	"eu-north-1":     "EU (Stockholm)",
	"eu-south-1":     "EU (Milan)",
	"ap-northeast-1": "Asia Pacific (Tokyo)",
	"ap-northeast-2": "Asia Pacific (Seoul)",
	"ap-northeast-3": "Asia Pacific (Osaka)",
	"ap-southeast-1": "Asia Pacific (Singapore)",
	"ap-southeast-2": "Asia Pacific (Sydney)",
	"ap-southeast-3": "Asia Pacific (Jakarta)",
	"ap-south-1":     "Asia Pacific (Mumbai)",
	"ap-east-1":      "Asia Pacific (Hong Kong)",
	"sa-east-1":      "South America (Sao Paulo)",
	"ca-central-1":   "Canada (Central)",
	"me-south-1":     "Middle East (Bahrain)",
	"me-central-1":   "Middle East (UAE)",
	"af-south-1":     "Africa (Cape Town)",
}

// NormalizeRegion maps a region code to the catalog location name. Unknown
// regions are rejected rather than passed through.
func NormalizeRegion(region string) (string, bool) {
	loc, ok := regionLocations[region]
	return loc, ok
}

// SupportedRegions lists every region code the resolver accepts.
func SupportedRegions() []string {
	out := make([]string, 0, len(regionLocations))
	for r := range regionLocations {
		out = append(out, r)
	}
	return out
}
