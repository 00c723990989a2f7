package inbox

import (
	"reflect"
	"testing"

	"github.io/infrasutra/disposeme/internal/email"
)

func addr(user, host string) email.Address {
	return email.Address{Address: user + "@" + host, User: user, Host: host}
}

func TestResolveFanOutCardinality(t *testing.T) {
	resolver := Resolver{Domain: "example.com", FilterDomain: true}
	parsed := &email.Email{
		To: []email.Address{addr("a", "example.com"), addr("b", "example.com")},
		Cc: []email.Address{addr("c", "example.com")},
	}

	got := resolver.Resolve(parsed)
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveDeduplicates(t *testing.T) {
	resolver := Resolver{Domain: "example.com", FilterDomain: true}
	parsed := &email.Email{
		To: []email.Address{addr("a", "example.com"), addr("A.a+tag", "example.com")},
		Cc: []email.Address{addr("aa", "example.com")},
	}

	got := resolver.Resolve(parsed)
	want := []string{"aa"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveFallbackWhenNoRecipients(t *testing.T) {
	resolver := Resolver{Domain: "example.com", FilterDomain: true}

	got := resolver.Resolve(&email.Email{})
	want := []string{FallbackUsername}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveFallbackWhenAllForeign(t *testing.T) {
	resolver := Resolver{Domain: "example.com", FilterDomain: true}
	parsed := &email.Email{
		To: []email.Address{addr("a", "elsewhere.org")},
		Cc: []email.Address{addr("b", "elsewhere.org")},
	}

	got := resolver.Resolve(parsed)
	want := []string{FallbackUsername}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveFilterDisabledKeepsForeign(t *testing.T) {
	resolver := Resolver{Domain: "example.com", FilterDomain: false}
	parsed := &email.Email{
		To: []email.Address{addr("a", "elsewhere.org"), addr("b", "example.com")},
	}

	got := resolver.Resolve(parsed)
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveSkipsUnparseableAddresses(t *testing.T) {
	resolver := Resolver{Domain: "example.com", FilterDomain: true}
	parsed := &email.Email{
		To: []email.Address{
			{Address: "not-an-address"},
			addr("ok", "example.com"),
		},
	}

	got := resolver.Resolve(parsed)
	want := []string{"ok"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}
