// Package dns resolves the relay host, falling back to public resolvers
// when the system resolver fails (captive portals, broken VPN DNS).
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// PublicServers are raced when the system resolver fails.
var PublicServers = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
	"208.67.222.222",         // Cisco OpenDNS
	"208.67.220.220",         // Cisco OpenDNS
}

type Resolver struct {
	// Servers are raced on fallback. Empty disables the fallback.
	Servers      []string
	LocalTimeout time.Duration
	RaceTimeout  time.Duration

	// lookup resolves host, through server when it is set.
	lookup func(ctx context.Context, host, server string) ([]string, error)
}

// Default uses PublicServers.
var Default = &Resolver{
	Servers:      PublicServers,
	LocalTimeout: time.Second,
	RaceTimeout:  2 * time.Second,
}

// Lookup resolves host with the Default resolver.
func Lookup(ctx context.Context, host string) (string, error) {
	return Default.Lookup(ctx, host)
}

// Lookup returns one address for host, preferring IPv4. IP literals are
// returned unchanged.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	localCtx, cancel := context.WithTimeout(ctx, r.LocalTimeout)
	ip, localErr := r.resolve(localCtx, host, "")
	cancel()
	if localErr == nil {
		return ip, nil
	}
	if len(r.Servers) == 0 || ctx.Err() != nil {
		return "", fmt.Errorf("resolve %s: %w", host, localErr)
	}

	ip, err := r.race(ctx, host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, errors.Join(localErr, err))
	}
	return ip, nil
}

// race queries every server at once and returns the first answer.
func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, r.RaceTimeout)
	defer cancel()

	results := make(chan result, len(r.Servers))
	for _, server := range r.Servers {
		go func(server string) {
			ip, err := r.resolve(ctx, host, server)
			results <- result{ip: ip, err: err}
		}(server)
	}

	var errs []error
	for range r.Servers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
			errs = append(errs, res.err)
		case <-ctx.Done():
			return "", fmt.Errorf("public DNS race: %w", ctx.Err())
		}
	}
	return "", fmt.Errorf("all %d public DNS servers failed: %w", len(errs), errors.Join(errs...))
}

func (r *Resolver) resolve(ctx context.Context, host, server string) (string, error) {
	lookup := r.lookup
	if lookup == nil {
		lookup = lookupHost
	}
	ips, err := lookup(ctx, host, server)
	if err != nil {
		return "", err
	}
	return preferIPv4(ips)
}

func lookupHost(ctx context.Context, host, server string) ([]string, error) {
	resolver := &net.Resolver{}
	if server != "" {
		resolver = &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
			},
		}
	}
	return resolver.LookupHost(ctx, host)
}

func preferIPv4(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", errors.New("no addresses returned")
	}
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
