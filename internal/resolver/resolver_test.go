package resolver_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/tokman/internal/keys"
	"github.com/dropDatabas3/tokman/internal/keystore"
	"github.com/dropDatabas3/tokman/internal/resolver"
)

func genPubPEM(t *testing.T) (*rsa.PublicKey, []byte) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	pem, err := keys.EncodePublicPEM(&priv.PublicKey)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return &priv.PublicKey, pem
}

// keyServer serves {"public_key": pem} for any kid and counts hits.
func keyServer(pem []byte, hits *atomic.Int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"public_key": string(pem)})
	}))
}

func TestResolve_RemoteFetchAndCache(t *testing.T) {
	pub, pem := genPubPEM(t)
	var hits atomic.Int64
	srv := keyServer(pem, &hits)
	defer srv.Close()

	store := keystore.NewMemory()
	trusted := map[string]resolver.TrustedIssuer{"ledger": {URL: srv.URL}}
	r := resolver.New(store, "billing", trusted, time.Hour, time.Second, nil)
	ctx := context.Background()

	got, err := r.Resolve(ctx, "ledger", "kid-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.N.Cmp(pub.N) != 0 {
		t.Fatal("wrong key resolved")
	}

	// Second resolve inside the freshness window: no new fetch.
	if _, err := r.Resolve(ctx, "ledger", "kid-1"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}

	// The shared store was populated for other processes.
	ns := keystore.Keys{Service: "billing"}
	if _, err := store.Get(ctx, ns.IssuerPublicKey("ledger", "kid-1")); err != nil {
		t.Fatalf("shared store not populated: %v", err)
	}
}

func TestResolve_SharedStoreHitSkipsFetch(t *testing.T) {
	_, pem := genPubPEM(t)
	var hits atomic.Int64
	srv := keyServer(pem, &hits)
	defer srv.Close()

	store := keystore.NewMemory()
	ns := keystore.Keys{Service: "billing"}
	ctx := context.Background()
	// Another process already cached the key in the shared store.
	if err := store.Set(ctx, ns.IssuerPublicKey("ledger", "kid-9"), pem, time.Hour); err != nil {
		t.Fatal(err)
	}

	trusted := map[string]resolver.TrustedIssuer{"ledger": {URL: srv.URL}}
	r := resolver.New(store, "billing", trusted, time.Hour, time.Second, nil)

	if _, err := r.Resolve(ctx, "ledger", "kid-9"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("expected no fetch on store hit, got %d", n)
	}
}

func TestResolve_UnknownIssuer(t *testing.T) {
	r := resolver.New(keystore.NewMemory(), "billing", nil, time.Hour, time.Second, nil)
	_, err := r.Resolve(context.Background(), "mallory", "kid-1")
	if !errors.Is(err, resolver.ErrUnknownIssuer) {
		t.Fatalf("expected ErrUnknownIssuer, got %v", err)
	}
}

func TestResolve_FetchFailureCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	trusted := map[string]resolver.TrustedIssuer{"ledger": {URL: srv.URL}}
	r := resolver.New(keystore.NewMemory(), "billing", trusted, time.Hour, time.Second, nil)

	_, err := r.Resolve(context.Background(), "ledger", "kid-1")
	if !errors.Is(err, resolver.ErrKeyFetchFailed) {
		t.Fatalf("expected fetch failure, got %v", err)
	}
	var fe *resolver.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fe.Status != http.StatusServiceUnavailable {
		t.Fatalf("status not carried: %d", fe.Status)
	}
	if fe.Endpoint != srv.URL {
		t.Fatalf("endpoint not carried: %q", fe.Endpoint)
	}
}

func TestResolve_FetchFailureNotCachedNegatively(t *testing.T) {
	_, pem := genPubPEM(t)
	var fail atomic.Bool
	fail.Store(true)
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"public_key": string(pem)})
	}))
	defer srv.Close()

	trusted := map[string]resolver.TrustedIssuer{"ledger": {URL: srv.URL}}
	r := resolver.New(keystore.NewMemory(), "billing", trusted, time.Hour, time.Second, nil)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "ledger", "kid-1"); err == nil {
		t.Fatal("expected failure while endpoint is down")
	}
	fail.Store(false)
	if _, err := r.Resolve(ctx, "ledger", "kid-1"); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("expected 2 fetches (failure not cached), got %d", n)
	}
}

func TestResolve_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"wrong_field": "x"}`))
	}))
	defer srv.Close()

	trusted := map[string]resolver.TrustedIssuer{"ledger": {URL: srv.URL}}
	r := resolver.New(keystore.NewMemory(), "billing", trusted, time.Hour, time.Second, nil)

	_, err := r.Resolve(context.Background(), "ledger", "kid-1")
	if !errors.Is(err, resolver.ErrKeyFetchFailed) {
		t.Fatalf("expected fetch failure for malformed body, got %v", err)
	}
}

func TestResolve_LocalKey(t *testing.T) {
	pub, pem := genPubPEM(t)
	store := keystore.NewMemory()
	ns := keystore.Keys{Service: "billing"}
	ctx := context.Background()
	if err := store.Set(ctx, ns.PublicKey("kid-local"), pem, 0); err != nil {
		t.Fatal(err)
	}

	r := resolver.New(store, "billing", nil, time.Hour, time.Second, nil)
	got, err := r.Resolve(ctx, "billing", "kid-local")
	if err != nil {
		t.Fatalf("resolve local: %v", err)
	}
	if got.N.Cmp(pub.N) != 0 {
		t.Fatal("wrong local key")
	}

	_, err = r.Resolve(ctx, "billing", "kid-unknown")
	if !errors.Is(err, resolver.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestResolve_FetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	trusted := map[string]resolver.TrustedIssuer{"ledger": {URL: srv.URL}}
	r := resolver.New(keystore.NewMemory(), "billing", trusted, time.Hour, 50*time.Millisecond, nil)

	start := time.Now()
	_, err := r.Resolve(context.Background(), "ledger", "kid-1")
	if !errors.Is(err, resolver.ErrKeyFetchFailed) {
		t.Fatalf("expected fetch failure on timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("fetch not bounded by timeout, took %s", elapsed)
	}
}
