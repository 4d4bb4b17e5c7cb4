package weather

import (
	"fmt"
	"strings"
)

// UnitSystem selects the measurement system of a snapshot.
type UnitSystem int

const (
	Metric UnitSystem = iota
	Imperial
)

// mphPerMetrePerSecond converts m/s to mph.
const mphPerMetrePerSecond = 2.23694

// imperialRegions are the region codes that default to imperial units.
var imperialRegions = map[string]struct{}{
	"US": {},
	"BS": {},
	"BZ": {},
	"KY": {},
}

// APIValue is the unit code sent to remote weather services.
func (u UnitSystem) APIValue() string {
	if u == Imperial {
		return "imperial"
	}
	return "metric"
}

func (u UnitSystem) String() string {
	return u.APIValue()
}

// TemperatureSymbol returns the display symbol for temperatures.
func (u UnitSystem) TemperatureSymbol() string {
	if u == Imperial {
		return "°F"
	}
	return "°C"
}

// SpeedSymbol returns the display symbol for wind speed.
func (u UnitSystem) SpeedSymbol() string {
	if u == Imperial {
		return "mph"
	}
	return "m/s"
}

// Toggle returns the other unit system.
func (u UnitSystem) Toggle() UnitSystem {
	if u == Imperial {
		return Metric
	}
	return Imperial
}

func (u UnitSystem) MarshalText() ([]byte, error) {
	return []byte(u.APIValue()), nil
}

func (u *UnitSystem) UnmarshalText(text []byte) error {
	parsed, err := ParseUnitSystem(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// ParseUnitSystem accepts "metric" or "imperial", case-insensitively.
func ParseUnitSystem(s string) (UnitSystem, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "metric":
		return Metric, nil
	case "imperial":
		return Imperial, nil
	default:
		return Metric, fmt.Errorf("unknown unit system %q", s)
	}
}

// UnitSystemForRegion derives the default unit system from a region code.
func UnitSystemForRegion(region string) UnitSystem {
	if _, ok := imperialRegions[strings.ToUpper(strings.TrimSpace(region))]; ok {
		return Imperial
	}
	return Metric
}

// RegionFromLocale extracts the region of a POSIX locale such as "en_US.UTF-8".
// It returns an empty string when the locale carries no region.
func RegionFromLocale(locale string) string {
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	sep := strings.IndexAny(locale, "_-")
	if sep < 0 || sep == len(locale)-1 {
		return ""
	}
	return strings.ToUpper(locale[sep+1:])
}

// Convert re-expresses every temperature and the current wind speed of the
// snapshot in the target unit system. The input is left untouched.
func Convert(s Snapshot, from, to UnitSystem) Snapshot {
	if from == to {
		return s
	}

	temp := func(v float64) float64 {
		if to == Imperial {
			return v*9/5 + 32
		}
		return (v - 32) * 5 / 9
	}

	out := s
	out.Current.Temperature = temp(s.Current.Temperature)
	out.Current.FeelsLike = temp(s.Current.FeelsLike)
	if s.Current.WindSpeed != nil {
		wind := *s.Current.WindSpeed
		if to == Imperial {
			wind *= mphPerMetrePerSecond
		} else {
			wind /= mphPerMetrePerSecond
		}
		out.Current.WindSpeed = &wind
	}

	if s.Hourly != nil {
		out.Hourly = make([]Hourly, len(s.Hourly))
		for i, h := range s.Hourly {
			h.Temperature = temp(h.Temperature)
			out.Hourly[i] = h
		}
	}

	if s.Tomorrow != nil {
		day := *s.Tomorrow
		day.MinTemp = temp(day.MinTemp)
		day.MaxTemp = temp(day.MaxTemp)
		out.Tomorrow = &day
	}

	return out
}
