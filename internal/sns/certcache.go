package sns

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ignite/mailtrace/internal/pkg/httpretry"
)

// CertSource fetches signing certificates by URL.
type CertSource interface {
	Get(url string) (*x509.Certificate, error)
}

// CertCache fetches signing certificates over HTTPS and caches parsed
// certificates by URL for a bounded TTL. Only successful fetches are
// cached; a transient fetch failure is returned to the caller and retried
// on the next webhook, never cached as a negative result.
type CertCache struct {
	client httpretry.HTTPDoer
	ttl    time.Duration

	mu      sync.RWMutex
	entries map[string]certEntry
}

type certEntry struct {
	cert      *x509.Certificate
	fetchedAt time.Time
}

// NewCertCache creates a certificate cache. A nil client falls back to a
// retrying HTTPS client with TLS peer verification (the http.Client
// default; it is never disabled here).
func NewCertCache(client httpretry.HTTPDoer, ttl time.Duration) *CertCache {
	if client == nil {
		client = httpretry.NewRetryClient(nil, 2)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CertCache{
		client:  client,
		ttl:     ttl,
		entries: make(map[string]certEntry),
	}
}

// Get returns the certificate at url, from cache when fresh.
func (c *CertCache) Get(url string) (*x509.Certificate, error) {
	c.mu.RLock()
	entry, ok := c.entries[url]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.cert, nil
	}

	cert, err := c.fetch(url)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[url] = certEntry{cert: cert, fetchedAt: time.Now()}
	c.mu.Unlock()
	return cert, nil
}

func (c *CertCache) fetch(url string) (*x509.Certificate, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build cert request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch signing cert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch signing cert: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read signing cert: %w", err)
	}

	block, _ := pem.Decode(body)
	if block == nil {
		return nil, fmt.Errorf("signing cert is not PEM encoded")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing cert: %w", err)
	}
	return cert, nil
}
