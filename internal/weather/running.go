package weather

// RunningLevel grades outdoor running conditions.
type RunningLevel int

const (
	RunningClear RunningLevel = iota
	RunningCaution
	RunningExtreme
)

func (l RunningLevel) String() string {
	switch l {
	case RunningCaution:
		return "caution"
	case RunningExtreme:
		return "extreme"
	default:
		return "clear"
	}
}

func (l RunningLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// RunningStatus is the running advice derived from the current conditions.
type RunningStatus struct {
	Level RunningLevel `json:"level"`
	Label string       `json:"label"`
}

// RunningConditions grades the feels-like temperature (in °F) and humidity
// of snap, which is expressed in units.
func RunningConditions(snap Snapshot, units UnitSystem) RunningStatus {
	feelsF := snap.Current.FeelsLike
	if units == Metric {
		feelsF = feelsF*9/5 + 32
	}
	humidity := 0
	if snap.Current.Humidity != nil {
		humidity = *snap.Current.Humidity
	}

	switch {
	case feelsF >= 88 || feelsF <= 20 || humidity >= 85:
		return RunningStatus{Level: RunningExtreme, Label: "Extreme conditions: indoor suggested"}
	case (feelsF >= 75 && feelsF <= 87.9) || (humidity >= 70 && humidity <= 84):
		return RunningStatus{Level: RunningCaution, Label: "Caution: hydrate, go easy"}
	default:
		return RunningStatus{Level: RunningClear, Label: "No restrictions"}
	}
}
