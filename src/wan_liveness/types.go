package wan_liveness

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrInterfaceNotFound = errors.New("interface is not found in network config")
	ErrNotWAN            = errors.New("interface is not a WAN interface")
)

// Policy is the probe policy applied to every WAN.
type Policy struct {
	Resolvers  []string
	MinSuccess int
	DNSTimeout time.Duration
	ProbeHost  string
	HTTPSites  []string
}

// DefaultPolicy returns the public-resolver policy.
func DefaultPolicy() Policy {
	return Policy{
		Resolvers:  []string{"1.1.1.1", "8.8.8.8", "9.9.9.9"},
		MinSuccess: 1,
		DNSTimeout: 500 * time.Millisecond,
		ProbeHost:  "github.com",
		HTTPSites:  []string{"captive.apple.com", "cp.cloudflare.com", "clients3.google.com/generate_204"},
	}
}

// ProbeOptions tunes a single probe.
type ProbeOptions struct {
	// HTTPSites replaces the policy's site list when not empty.
	HTTPSites []string
	// ProbeCount is the number of DNS queries per resolver; values below 1
	// mean 1.
	ProbeCount int
}

// AggregateOptions tunes Aggregate.
type AggregateOptions struct {
	// Live probes every WAN instead of reporting cached status.
	Live bool
}

// HTTPStatus is the status code of the first reachable site, or empty.
type HTTPStatus string

// MarshalJSON encodes an empty status as false.
func (s HTTPStatus) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("false"), nil
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON accepts the encoding produced by MarshalJSON.
func (s *HTTPStatus) UnmarshalJSON(data []byte) error {
	if string(data) == "false" || string(data) == "null" {
		*s = ""
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = HTTPStatus(v)
	return nil
}

// ProbeResult is the outcome of probing one WAN.
type ProbeResult struct {
	DNS  bool       `json:"dns"`
	HTTP HTTPStatus `json:"http"`
	TS   int64      `json:"ts"`
}

// OverallStatus reports per-WAN liveness. Values of WANs are either the
// routing layer's cached status or a fresh *ProbeResult.
type OverallStatus struct {
	Connected bool           `json:"connected"`
	WANs      map[string]any `json:"wans"`
}
