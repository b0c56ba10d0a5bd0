package geolocation

import "errors"

const StatusSuccess = "success"

var ErrLookupFailed = errors.New("geolocation_lookup_failed")

// Location is the ip-api.com response for the requested field set.
type Location struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
	Region      string `json:"region,omitempty"`
	RegionName  string `json:"regionName,omitempty"`
	City        string `json:"city,omitempty"`
}

func (l *Location) OK() bool {
	return l != nil && l.Status == StatusSuccess
}

// Fields is the projection copied onto a lead.
type Fields struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// FormatLocationData projects a lookup into lead fields, all empty when the
// lookup failed.
func FormatLocationData(l *Location) Fields {
	if !l.OK() {
		return Fields{}
	}
	return Fields{
		City:    l.City,
		State:   l.RegionName,
		Country: l.Country,
	}
}
