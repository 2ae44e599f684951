package config

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jpalmerr/conflux"
)

// seedNamespace scopes IDs derived for health checks declared without one.
var seedNamespace = uuid.MustParse("5b0f3c52-6f8e-4f6e-9a51-1f1d8c0e7a2b")

// BuildHealthChecks converts parsed configuration into health checks ready
// for [conflux.Engine.Register].
//
// Checks without an ID get a UUIDv5 of their name and URL, so a restart with
// a durable store finds the same check instead of adding a second one.
func BuildHealthChecks(cfg *Config) []conflux.HealthCheck {
	checks := make([]conflux.HealthCheck, 0, len(cfg.HealthChecks))
	for _, hc := range cfg.HealthChecks {
		id := hc.ID
		if id == "" {
			id = SeedID(hc.Name, hc.URL)
		}
		checks = append(checks, conflux.HealthCheck{
			ID:              id,
			Name:            hc.Name,
			URL:             hc.URL,
			Method:          hc.Method,
			IntervalSeconds: int(hc.Interval.Duration().Seconds()),
			Enabled:         true,
		})
	}
	return checks
}

// SeedID derives the stable ID of a health check declared without one.
func SeedID(name, url string) string {
	return uuid.NewSHA1(seedNamespace, []byte(fmt.Sprintf("%s\x00%s", name, url))).String()
}
