// internal/webhook/ssrf.go
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// ErrURLNotAllowed is returned by a URLPolicy that rejects a delivery target.
var ErrURLNotAllowed = errors.New("webhook url not allowed")

// URLPolicy decides whether a webhook URL may be called.
type URLPolicy interface {
	Check(ctx context.Context, rawURL string) error
}

// PolicyFunc adapts a function to URLPolicy.
type PolicyFunc func(ctx context.Context, rawURL string) error

func (f PolicyFunc) Check(ctx context.Context, rawURL string) error { return f(ctx, rawURL) }

// AllowAll accepts every URL.
var AllowAll = PolicyFunc(func(context.Context, string) error { return nil })

var blockedPrefixes = mustPrefixes(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"100.64.0.0/10",
	"192.0.0.0/24",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

var blockedHosts = map[string]bool{
	"localhost":                true,
	"localhost.localdomain":    true,
	"0.0.0.0":                  true,
	"[::1]":                    true,
	"metadata.google.internal": true,
	"metadata.google":          true,
}

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, len(cidrs))
	for i, c := range cidrs {
		out[i] = netip.MustParsePrefix(c)
	}
	return out
}

// Resolver looks up the addresses of a host name.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// SSRFGuard rejects URLs that point at loopback, private, link-local or reserved addresses.
// Names that fail to resolve are allowed.
type SSRFGuard struct {
	Resolver Resolver
}

// NewSSRFGuard returns a guard using the default resolver.
func NewSSRFGuard() *SSRFGuard {
	return &SSRFGuard{Resolver: net.DefaultResolver}
}

func (g *SSRFGuard) Check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: invalid url format", ErrURLNotAllowed)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: only http and https schemes are allowed", ErrURLNotAllowed)
	}

	host := strings.ToLower(u.Hostname())
	if blockedHosts[host] || blockedHosts["["+host+"]"] {
		return fmt.Errorf("%w: host '%s' is not allowed", ErrURLNotAllowed, host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return checkAddr(addr)
	}

	resolver := g.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		customLog.Debugf("Webhook: could not resolve '%s', allowing: %v", host, err)
		return nil
	}
	for _, addr := range addrs {
		if err := checkAddr(addr); err != nil {
			return err
		}
	}
	return nil
}

func checkAddr(addr netip.Addr) error {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return fmt.Errorf("%w: address %s is in a private or reserved range", ErrURLNotAllowed, addr)
		}
	}
	return nil
}
