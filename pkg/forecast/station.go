package forecast

import (
	"fmt"
	"strings"
	"time"
)

// Station holds the metadata needed to forecast and normalize one city's
// temperature markets.
type Station struct {
	Code     string // canonical code used in group keys, e.g. "NYC"
	Name     string
	Timezone string // IANA timezone
	Aliases  []string

	// NWS gridpoint for the station's forecast office
	NWSOffice string
	NWSGridX  int
	NWSGridY  int

	// Monthly average highs in °F, used as a fallback when the NWS is down
	MonthlyAvgHigh map[time.Month]float64
}

// Location returns the station's time.Location, falling back to UTC when the
// timezone database is missing the entry.
func (s *Station) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ClimatologyHigh returns the historical average high for a month.
func (s *Station) ClimatologyHigh(m time.Month) float64 {
	return s.MonthlyAvgHigh[m]
}

// NWSForecastURL returns the NWS gridpoint forecast endpoint for the station.
func (s *Station) NWSForecastURL() string {
	return fmt.Sprintf("https://api.weather.gov/gridpoints/%s/%d,%d/forecast",
		s.NWSOffice, s.NWSGridX, s.NWSGridY)
}

// Stations is the registry of supported cities, keyed by canonical code.
var Stations = map[string]*Station{
	"NYC": {
		Code:      "NYC",
		Name:      "John F. Kennedy International Airport",
		Timezone:  "America/New_York",
		Aliases:   []string{"NY", "NEW YORK", "NEW YORK CITY"},
		NWSOffice: "OKX",
		NWSGridX:  33,
		NWSGridY:  37,
		MonthlyAvgHigh: map[time.Month]float64{
			time.January: 39, time.February: 42, time.March: 50,
			time.April: 61, time.May: 71, time.June: 79,
			time.July: 84, time.August: 83, time.September: 76,
			time.October: 65, time.November: 54, time.December: 44,
		},
	},
	"LAX": {
		Code:      "LAX",
		Name:      "Los Angeles International Airport",
		Timezone:  "America/Los_Angeles",
		Aliases:   []string{"LA", "LOS ANGELES"},
		NWSOffice: "LOX",
		NWSGridX:  154,
		NWSGridY:  44,
		MonthlyAvgHigh: map[time.Month]float64{
			time.January: 68, time.February: 69, time.March: 70,
			time.April: 72, time.May: 74, time.June: 78,
			time.July: 83, time.August: 84, time.September: 83,
			time.October: 79, time.November: 73, time.December: 68,
		},
	},
	"CHI": {
		Code:      "CHI",
		Name:      "Chicago O'Hare International Airport",
		Timezone:  "America/Chicago",
		Aliases:   []string{"CHICAGO", "ORD"},
		NWSOffice: "LOT",
		NWSGridX:  65,
		NWSGridY:  76,
		MonthlyAvgHigh: map[time.Month]float64{
			time.January: 32, time.February: 36, time.March: 47,
			time.April: 59, time.May: 70, time.June: 80,
			time.July: 84, time.August: 82, time.September: 75,
			time.October: 62, time.November: 48, time.December: 35,
		},
	},
	"MIA": {
		Code:      "MIA",
		Name:      "Miami International Airport",
		Timezone:  "America/New_York",
		Aliases:   []string{"MIAMI"},
		NWSOffice: "MFL",
		NWSGridX:  109,
		NWSGridY:  50,
		MonthlyAvgHigh: map[time.Month]float64{
			time.January: 76, time.February: 78, time.March: 80,
			time.April: 83, time.May: 87, time.June: 89,
			time.July: 91, time.August: 91, time.September: 89,
			time.October: 86, time.November: 81, time.December: 77,
		},
	},
	"PHIL": {
		Code:      "PHIL",
		Name:      "Philadelphia International Airport",
		Timezone:  "America/New_York",
		Aliases:   []string{"PHL", "PHILADELPHIA"},
		NWSOffice: "PHI",
		NWSGridX:  49,
		NWSGridY:  75,
		MonthlyAvgHigh: map[time.Month]float64{
			time.January: 41, time.February: 44, time.March: 53,
			time.April: 64, time.May: 74, time.June: 83,
			time.July: 87, time.August: 86, time.September: 79,
			time.October: 68, time.November: 56, time.December: 46,
		},
	},
}

// aliasIndex maps every alias (and code) to its canonical code.
var aliasIndex = func() map[string]string {
	idx := make(map[string]string)
	for code, s := range Stations {
		idx[code] = code
		for _, a := range s.Aliases {
			idx[strings.ToUpper(a)] = code
		}
	}
	return idx
}()

// NormalizeLocation maps a location string (ticker suffix, city name, airport
// code) to a canonical station code. Unknown locations pass through uppercased
// so markets for unsupported cities still group consistently.
func NormalizeLocation(loc string) string {
	if code, ok := aliasIndex[strings.ToUpper(strings.TrimSpace(loc))]; ok {
		return code
	}
	return strings.ToUpper(strings.TrimSpace(loc))
}

// StationFor returns the station for a location, if supported.
func StationFor(loc string) (*Station, bool) {
	s, ok := Stations[NormalizeLocation(loc)]
	return s, ok
}
