package memdproto

import "encoding/json"

// ErrorMap is the decoded body of a GetErrorMap response. The server
// describes statuses outside the fixed enum here; connpool caches one per
// Connection after HELLO negotiates the error-map feature (spec §4.3).
type ErrorMap struct {
	Version int                     `json:"version"`
	Errors  map[string]ErrorMapInfo `json:"errors"`
}

// ErrorMapInfo describes one server-defined status code.
type ErrorMapInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"desc"`
	Attributes  []string `json:"attrs"`
}

// ParseErrorMap decodes a GetErrorMap response body.
func ParseErrorMap(body []byte) (*ErrorMap, error) {
	var m ErrorMap
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Lookup returns the description text for a raw wire status, or "" if the
// map has no entry (a genuinely unknown code).
func (m *ErrorMap) Lookup(ws WireStatus) string {
	if m == nil {
		return ""
	}
	key := formatHex(uint16(ws))
	if info, ok := m.Errors[key]; ok {
		return info.Description
	}
	return ""
}

// IsTransient reports whether the error-map entry for ws is tagged
// "temporary" or "retry-now"/"retry-later". The IO service's retry policy
// does not consult it.
func (m *ErrorMap) IsTransient(ws WireStatus) bool {
	if m == nil {
		return false
	}
	info, ok := m.Errors[formatHex(uint16(ws))]
	if !ok {
		return false
	}
	for _, a := range info.Attributes {
		switch a {
		case "temp", "retry-now", "retry-later":
			return true
		}
	}
	return false
}

func formatHex(v uint16) string {
	const hexdigits = "0123456789abcdef"
	b := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		b[i] = hexdigits[v&0xf]
		v >>= 4
	}
	return string(b)
}
