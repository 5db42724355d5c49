package linkcheck

import (
	"net/url"
	"strings"
)

// Provider is the payment service a link points at.
type Provider string

const (
	Zelle  Provider = "zelle"
	Stripe Provider = "stripe"
	Other  Provider = "other"
)

var providerHosts = []struct {
	suffix   string
	provider Provider
}{
	{"zellepay.com", Zelle},
	{"zelle.com", Zelle},
	{"stripe.com", Stripe},
	{"stripe.network", Stripe},
}

// Classify maps a URL to its provider by host. Unparseable URLs are Other.
func Classify(raw string) Provider {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Other
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range providerHosts {
		if host == p.suffix || strings.HasSuffix(host, "."+p.suffix) {
			return p.provider
		}
	}
	return Other
}
