package social

import (
	"net/http"
	"net/url"
)

// proxyTransport returns an *http.Transport routing every outbound request
// through proxyURL (spec §1 "Outbound proxy routing. Treated as a
// configuration value threaded into SocialClient construction").
func proxyTransport(proxyURL string) (*http.Transport, error) {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, err
	}
	return &http.Transport{Proxy: http.ProxyURL(parsed)}, nil
}
