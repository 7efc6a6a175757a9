package wpa_control

import "strings"

// Flags reported by wpa_cli list_networks.
const (
	FlagCurrent  = "CURRENT"
	FlagDisabled = "DISABLED"
)

// KnownNetwork is one row of the supplicant's network list.
type KnownNetwork struct {
	ID    string `json:"id"`
	SSID  string `json:"ssid"`
	BSSID string `json:"bssid"`
	Flags string `json:"flags"`
}

// IsCurrent reports whether the supplicant is associated with this network.
func (n KnownNetwork) IsCurrent() bool {
	return strings.Contains(n.Flags, FlagCurrent)
}

// IsDisabled reports whether the network is excluded from auto-selection.
func (n KnownNetwork) IsDisabled() bool {
	return strings.Contains(n.Flags, FlagDisabled)
}

// Network parameters whose values are strings in wpa_supplicant syntax and
// must reach it double quoted.
var quotedParams = map[string]struct{}{
	"ssid":               {},
	"psk":                {},
	"identity":           {},
	"anonymous_identity": {},
	"password":           {},
	"phase1":             {},
	"phase2":             {},
	"sae_password":       {},
}

// IsSensitiveParam reports whether key's value is escaped before it is sent.
func IsSensitiveParam(key string) bool {
	_, ok := quotedParams[key]
	return ok
}

// EscapeValue returns value as it must be passed to set_network for key.
// Values of sensitive keys are wrapped in double quotes unless the caller
// already quoted them.
func EscapeValue(key, value string) string {
	if !IsSensitiveParam(key) {
		return value
	}
	if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		return value
	}
	return `"` + value + `"`
}
