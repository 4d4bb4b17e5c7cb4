package weather

import (
	"time"
)

// Snapshot is one complete weather read (current + hourly + next day) in a
// single unit system.
type Snapshot struct {
	LocationLabel string   `json:"locationLabel"`
	Current       Current  `json:"current"`
	Hourly        []Hourly `json:"hourly"`
	Tomorrow      *Daily   `json:"tomorrow,omitempty"`

	Sunrise *time.Time `json:"sunrise,omitempty"`
	Sunset  *time.Time `json:"sunset,omitempty"`
}

// Current holds the current conditions. WindSpeed is the only wind field of a snapshot.
type Current struct {
	Temperature float64  `json:"temperature"`
	FeelsLike   float64  `json:"feelsLike"`
	Description string   `json:"description"`
	Icon        *string  `json:"icon,omitempty"`
	Humidity    *int     `json:"humidity,omitempty"`
	WindSpeed   *float64 `json:"windSpeed,omitempty"`
}

// Hourly is a single forecast point.
// PrecipitationChance is a probability in [0,1].
type Hourly struct {
	Time                time.Time `json:"time"`
	Temperature         float64   `json:"temperature"`
	Icon                *string   `json:"icon,omitempty"`
	PrecipitationChance *float64  `json:"precipitationChance,omitempty"`
}

// Daily summarizes the next calendar day.
type Daily struct {
	Date        time.Time `json:"date"`
	MinTemp     float64   `json:"minTemp"`
	MaxTemp     float64   `json:"maxTemp"`
	Description string    `json:"description"`
	Icon        *string   `json:"icon,omitempty"`
}

// Record is a successful refresh kept in the in-memory history.
type Record struct {
	UpdatedAt time.Time  `json:"updatedAt"`
	Units     UnitSystem `json:"units"`
	Snapshot  Snapshot   `json:"snapshot"`
}
