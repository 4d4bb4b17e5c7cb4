package weather

import "time"

// HourlyPoints is the number of forecast points shown as hourly entries.
const HourlyPoints = 12

// ForecastPoint is one provider forecast step, already in the requested units.
type ForecastPoint struct {
	Time                time.Time
	Temperature         float64
	TempMin             *float64
	TempMax             *float64
	Description         string
	Icon                *string
	PrecipitationChance *float64
}

// AggregateForecast turns provider forecast points into the hourly strip and
// the summary of tomorrow. Tomorrow is the calendar day after now in zone.
// The summary is nil when no point falls on that day.
func AggregateForecast(points []ForecastPoint, zone *time.Location, now time.Time) ([]Hourly, *Daily) {
	if zone == nil {
		zone = time.UTC
	}

	n := len(points)
	if n > HourlyPoints {
		n = HourlyPoints
	}
	hourly := make([]Hourly, 0, n)
	for _, p := range points[:n] {
		hourly = append(hourly, Hourly{
			Time:                p.Time,
			Temperature:         p.Temperature,
			Icon:                p.Icon,
			PrecipitationChance: p.PrecipitationChance,
		})
	}

	local := now.In(zone)
	tomorrow := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, zone)
	dayAfter := tomorrow.AddDate(0, 0, 1)

	var (
		first                    *ForecastPoint
		minTemp, maxTemp         float64
		haveMin, haveMax         bool
		fallbackMin, fallbackMax float64
	)
	for i := range points {
		p := &points[i]
		t := p.Time.In(zone)
		if t.Before(tomorrow) || !t.Before(dayAfter) {
			continue
		}
		if first == nil {
			first = p
			fallbackMin, fallbackMax = p.Temperature, p.Temperature
		}
		if p.Temperature < fallbackMin {
			fallbackMin = p.Temperature
		}
		if p.Temperature > fallbackMax {
			fallbackMax = p.Temperature
		}
		if p.TempMin != nil && (!haveMin || *p.TempMin < minTemp) {
			minTemp, haveMin = *p.TempMin, true
		}
		if p.TempMax != nil && (!haveMax || *p.TempMax > maxTemp) {
			maxTemp, haveMax = *p.TempMax, true
		}
	}
	if first == nil {
		return hourly, nil
	}

	if !haveMin {
		minTemp = fallbackMin
	}
	if !haveMax {
		maxTemp = fallbackMax
	}
	desc := first.Description
	if desc == "" {
		desc = "N/A"
	}

	return hourly, &Daily{
		Date:        tomorrow,
		MinTemp:     minTemp,
		MaxTemp:     maxTemp,
		Description: desc,
		Icon:        first.Icon,
	}
}
