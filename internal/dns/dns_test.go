package dns

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func fakeResolver(answers map[string][]string) (*Resolver, *[]string) {
	var mu sync.Mutex
	var asked []string
	r := &Resolver{
		Servers:      []string{"s1", "s2"},
		LocalTimeout: time.Second,
		RaceTimeout:  time.Second,
		lookup: func(ctx context.Context, host, server string) ([]string, error) {
			mu.Lock()
			asked = append(asked, server)
			mu.Unlock()
			if ips, ok := answers[server]; ok {
				return ips, nil
			}
			return nil, errors.New("no answer from " + server)
		},
	}
	return r, &asked
}

func TestLiteralIPIsNotResolved(t *testing.T) {
	r, asked := fakeResolver(nil)
	ip, err := r.Lookup(context.Background(), "10.0.0.7")
	if err != nil || ip != "10.0.0.7" {
		t.Fatalf("Lookup = %s, %v", ip, err)
	}
	if len(*asked) != 0 {
		t.Fatalf("literal went to resolvers: %v", *asked)
	}
}

func TestSystemResolverPreferred(t *testing.T) {
	r, asked := fakeResolver(map[string][]string{"": {"2001:db8::1", "192.0.2.1"}})
	ip, err := r.Lookup(context.Background(), "relay.example")
	if err != nil || ip != "192.0.2.1" {
		t.Fatalf("Lookup = %s, %v; want the IPv4 answer", ip, err)
	}
	if len(*asked) != 1 {
		t.Fatalf("fallback used although the system resolver answered: %v", *asked)
	}
}

func TestFallbackToPublicServers(t *testing.T) {
	r, _ := fakeResolver(map[string][]string{"s2": {"2001:db8::2"}})
	ip, err := r.Lookup(context.Background(), "relay.example")
	if err != nil || ip != "2001:db8::2" {
		t.Fatalf("Lookup = %s, %v", ip, err)
	}
}

func TestAllResolversFail(t *testing.T) {
	r, asked := fakeResolver(nil)
	if _, err := r.Lookup(context.Background(), "relay.example"); err == nil {
		t.Fatalf("Lookup succeeded with no answers")
	}
	if len(*asked) != 3 {
		t.Fatalf("asked %v, want system plus both servers", *asked)
	}

	r.Servers = nil
	if _, err := r.Lookup(context.Background(), "relay.example"); err == nil {
		t.Fatalf("Lookup succeeded without fallback servers")
	}
}
