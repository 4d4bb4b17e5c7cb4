package dashboard

import (
	"github.com/i474232898/always-on-dashboard/internal/calendar"
	"github.com/i474232898/always-on-dashboard/internal/weather"
)

type ClockView struct {
	Time string `json:"time"`
	Date string `json:"date"`
}

type Permissions struct {
	Location bool `json:"location"`
	Calendar bool `json:"calendar"`
}

type UnitsView struct {
	System      weather.UnitSystem `json:"system"`
	Temperature string             `json:"temperature"`
	Speed       string             `json:"speed"`
}

// WeatherView is the weather panel. Running is set only while data is shown.
type WeatherView struct {
	weather.State
	Units              UnitsView              `json:"units"`
	CredentialOverride bool                   `json:"credentialOverride"`
	Running            *weather.RunningStatus `json:"running,omitempty"`
}

type View struct {
	Clock       ClockView        `json:"clock"`
	Events      []calendar.Event `json:"events"`
	Permissions Permissions      `json:"permissions"`
	Weather     WeatherView      `json:"weather"`
}

// NewUnitsView describes u with its display symbols.
func NewUnitsView(u weather.UnitSystem) UnitsView {
	return UnitsView{System: u, Temperature: u.TemperatureSymbol(), Speed: u.SpeedSymbol()}
}

// WeatherPanel composes the weather part of the view.
func (s *Service) WeatherPanel() WeatherView {
	st := s.weather.State()

	panel := WeatherView{
		State:              st,
		Units:              NewUnitsView(st.Units),
		CredentialOverride: s.weather.HasCredentialOverride(),
	}
	if st.Snapshot != nil {
		running := weather.RunningConditions(*st.Snapshot, st.Units)
		panel.Running = &running
	}
	return panel
}

// View composes the whole screen.
func (s *Service) View() View {
	s.mu.Lock()
	now := s.now
	events := make([]calendar.Event, len(s.events))
	copy(events, s.events)
	hasCalendar := s.hasCalendar
	s.mu.Unlock()

	return View{
		Clock:  ClockView{Time: now.Format(TimeLayout), Date: now.Format(DateLayout)},
		Events: events,
		Permissions: Permissions{
			Location: s.weather.LocationPermitted(),
			Calendar: hasCalendar,
		},
		Weather: s.WeatherPanel(),
	}
}
