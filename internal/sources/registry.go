package sources

import (
	"time"

	"fieldsprout/internal/config"
)

// NewStandardRegistry wires every adapter to its production client in
// the order backfills report them.
func NewStandardRegistry(cfg *config.Config, leads LeadCounter) *Registry {
	timeout := cfg.SourceTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return NewRegistry(
		NewGoogleAdsAdapter(NewGoogleAdsHTTPClient(cfg.GoogleAdsDeveloperToken, cfg.GoogleAdsAPIVersion, timeout)),
		NewAnalyticsAdapter(&AnalyticsAPIClient{}),
		NewSearchConsoleAdapter(&SearchConsoleAPIClient{}),
		NewGLSAAdapter(leads),
		GMBAdapter{},
		NewFacebookAdsAdapter(NewFacebookHTTPClient(cfg.FacebookAPIVersion, timeout)),
	)
}
