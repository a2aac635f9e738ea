package features

import (
	"slices"
	"strings"
)

// DefaultDistanceKm is used for route pairs absent from the distance table.
const DefaultDistanceKm = 800.0

type route struct {
	a, b string
}

// Distances are stored once per pair; EstimateDistance checks both directions.
var routeDistances = map[route]float64{
	{"KUL", "PEN"}: 325,
	{"KUL", "BKI"}: 1630,
	{"KUL", "KCH"}: 975,
	{"KUL", "LGK"}: 300,
	{"KUL", "JHB"}: 280,
	{"KUL", "AOR"}: 650,
	{"KUL", "MYY"}: 1150,
	{"PEN", "BKI"}: 1350,
	{"PEN", "KCH"}: 750,
	{"KUL", "SIN"}: 296,
	{"KUL", "BKK"}: 1220,
	{"KUL", "HKG"}: 2560,
	{"KUL", "NRT"}: 5320,
	{"KUL", "ICN"}: 4620,
	{"KUL", "LHR"}: 10600,
	{"KUL", "SYD"}: 6530,
	{"KUL", "DXB"}: 5550,
	{"KUL", "DOH"}: 5630,
}

// Malaysian airports treated as domestic. Anything else is international.
var domesticAirports = map[string]bool{
	"KUL": true, "PEN": true, "BKI": true, "KCH": true, "LGK": true, "JHB": true,
	"AOR": true, "MYY": true, "SDK": true, "TWU": true, "KBR": true, "TGG": true,
	"IPH": true, "MKZ": true, "SBW": true, "BTU": true, "LBU": true,
}

var peakHours = map[int]bool{7: true, 8: true, 9: true, 17: true, 18: true, 19: true, 20: true}

// Months with elevated travel demand (school and festive holidays).
var holidayMonths = map[int]bool{12: true, 1: true, 6: true, 7: true, 8: true}

// RouteDistance is one entry of the distance table.
type RouteDistance struct {
	Origin     string  `json:"origin"`
	Dest       string  `json:"destination"`
	DistanceKm float64 `json:"distance_km"`
}

// KnownRoutes lists the distance table sorted by origin then destination.
func KnownRoutes() []RouteDistance {
	out := make([]RouteDistance, 0, len(routeDistances))
	for r, d := range routeDistances {
		out = append(out, RouteDistance{Origin: r.a, Dest: r.b, DistanceKm: d})
	}
	slices.SortFunc(out, func(x, y RouteDistance) int {
		if c := strings.Compare(x.Origin, y.Origin); c != 0 {
			return c
		}
		return strings.Compare(x.Dest, y.Dest)
	})
	return out
}

// DomesticAirports returns the domestic airport set, sorted.
func DomesticAirports() []string {
	out := make([]string, 0, len(domesticAirports))
	for code := range domesticAirports {
		out = append(out, code)
	}
	slices.Sort(out)
	return out
}

// NormalizeCode canonicalizes an airport or airline code. Training ingest and
// request validation both pass codes through here before deriving features.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
