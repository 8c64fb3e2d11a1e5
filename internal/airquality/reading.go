package airquality

import (
	"encoding/json"
	"fmt"
)

// Reading mirrors the "data" object of an AirVisual nearest_city response.
// It marshals back to the provider's exact JSON, including fields not
// modelled here.
type Reading struct {
	City     string   `json:"city"`
	State    string   `json:"state"`
	Country  string   `json:"country"`
	Location Location `json:"location"`
	Current  Current  `json:"current"`

	raw json.RawMessage
}

type Location struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

type Current struct {
	Pollution Pollution `json:"pollution"`
	Weather   Weather   `json:"weather"`
}

type Pollution struct {
	Timestamp string  `json:"ts"`
	AQIUS     float64 `json:"aqius"`
	MainUS    string  `json:"mainus"`
	AQICN     float64 `json:"aqicn"`
	MainCN    string  `json:"maincn"`
}

type Weather struct {
	Timestamp     string  `json:"ts"`
	Temperature   float64 `json:"tp"`
	Pressure      float64 `json:"pr"`
	Humidity      float64 `json:"hu"`
	WindSpeed     float64 `json:"ws"`
	WindDirection float64 `json:"wd"`
	Icon          string  `json:"ic"`
}

// readingFields breaks the MarshalJSON recursion.
type readingFields Reading

// parseReading keeps data verbatim and fills the typed fields best-effort.
// Only a payload that is not a JSON object is rejected.
func parseReading(data json.RawMessage) (*Reading, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode reading: %w", err)
	}

	r := &Reading{raw: append(json.RawMessage(nil), data...)}

	// Sections decode independently so a type change in one leaves the others.
	decodeField(obj["city"], &r.City)
	decodeField(obj["state"], &r.State)
	decodeField(obj["country"], &r.Country)
	decodeField(obj["location"], &r.Location)

	var current map[string]json.RawMessage
	if json.Unmarshal(obj["current"], &current) == nil {
		decodeField(current["pollution"], &r.Current.Pollution)
		decodeField(current["weather"], &r.Current.Weather)
	}
	return r, nil
}

func decodeField(raw json.RawMessage, v any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, v)
}

func (r Reading) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	return json.Marshal(readingFields(r))
}

// Category names the EPA band of the US AQI value.
func (r *Reading) Category() string {
	aqi := r.Current.Pollution.AQIUS
	switch {
	case aqi <= 50:
		return "Good"
	case aqi <= 100:
		return "Moderate"
	case aqi <= 150:
		return "Unhealthy for Sensitive Groups"
	case aqi <= 200:
		return "Unhealthy"
	case aqi <= 300:
		return "Very Unhealthy"
	default:
		return "Hazardous"
	}
}
