package models

import (
	"encoding/json"
	"fmt"
)

// Severity is the ordered health level of a region or event.
// Operational < Issue < Outage.
type Severity int

const (
	SeverityOperational Severity = iota
	SeverityIssue
	SeverityOutage
)

func (s Severity) String() string {
	switch s {
	case SeverityIssue:
		return "issue"
	case SeverityOutage:
		return "outage"
	default:
		return "operational"
	}
}

// ParseSeverity converts the wire form ("operational", "issue", "outage")
// back into a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "operational":
		return SeverityOperational, nil
	case "issue":
		return SeverityIssue, nil
	case "outage":
		return SeverityOutage, nil
	default:
		return SeverityOperational, fmt.Errorf("unknown severity: %q", s)
	}
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Region is a fixed service region shown on the map. Only Status changes at
// runtime; the rest is static reference data.
type Region struct {
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	Longitude float64  `json:"longitude"`
	Latitude  float64  `json:"latitude"`
	Status    Severity `json:"status"`
}

// DefaultRegions returns the monitored region set. Every entry starts
// operational.
func DefaultRegions() []Region {
	return []Region{
		{Code: "us-east-1", Name: "US East (N. Virginia)", Longitude: -77.0369, Latitude: 38.9072},
		{Code: "us-east-2", Name: "US East (Ohio)", Longitude: -82.9988, Latitude: 39.9612},
		{Code: "us-west-1", Name: "US West (N. California)", Longitude: -122.4194, Latitude: 37.7749},
		{Code: "us-west-2", Name: "US West (Oregon)", Longitude: -122.6784, Latitude: 45.5155},
		{Code: "ap-northeast-1", Name: "Asia Pacific (Tokyo)", Longitude: 139.6917, Latitude: 35.6895},
		{Code: "ap-northeast-2", Name: "Asia Pacific (Seoul)", Longitude: 126.9780, Latitude: 37.5665},
		{Code: "ap-southeast-1", Name: "Asia Pacific (Singapore)", Longitude: 103.8198, Latitude: 1.3521},
		{Code: "ap-southeast-2", Name: "Asia Pacific (Sydney)", Longitude: 151.2093, Latitude: -33.8688},
		{Code: "eu-west-1", Name: "EU (Ireland)", Longitude: -6.2603, Latitude: 53.3498},
		{Code: "eu-central-1", Name: "EU (Frankfurt)", Longitude: 8.6821, Latitude: 50.1109},
		{Code: "eu-west-2", Name: "EU (London)", Longitude: -0.1276, Latitude: 51.5074},
	}
}
