// Package collectortest provides an in-process collector that verifies the
// Hamustro request protocol. It exists for tests and persists nothing.
package collectortest

import (
	"crypto/subtle"
	"io"
	"log"
	"mime"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"hamustro/codec"
	"hamustro/models"
	"hamustro/signature"
)

const (
	// ReplayWindow is how long a signature is remembered. A second request
	// carrying the same signature inside the window is rejected.
	ReplayWindow = 5 * time.Minute

	maxBodySize = 4 << 20
)

type Collector struct {
	*httptest.Server

	secret  string
	version models.Version
	seen    *cache.Cache

	mu       sync.Mutex
	received []*models.Collection
}

// NewServer starts a collector expecting version v messages signed with
// secret. Close it when done.
func NewServer(secret string, v models.Version) *Collector {
	c := &Collector{
		secret:  secret,
		version: v,
		seen:    cache.New(ReplayWindow, 2*ReplayWindow),
	}
	c.Server = httptest.NewServer(c.TrackHandler())
	return c
}

// Received returns the collections accepted so far.
func (c *Collector) Received() []*models.Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.Collection, len(c.received))
	copy(out, c.received)
	return out
}

func reject(w http.ResponseWriter, code int, format string, args ...any) {
	log.Printf("TrackHandler: "+format, args...)
	w.WriteHeader(code)
}

func (c *Collector) TrackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)

		if r.Method != http.MethodPost {
			reject(w, http.StatusMethodNotAllowed, "method not allowed: %s from %s", r.Method, clientIP)
			return
		}

		ts := r.Header.Get("X-Hamustro-Time")
		if ts == "" {
			reject(w, http.StatusUnauthorized, "missing X-Hamustro-Time from %s", clientIP)
			return
		}
		sig := r.Header.Get("X-Hamustro-Signature")
		if sig == "" {
			reject(w, http.StatusUnauthorized, "missing X-Hamustro-Signature from %s", clientIP)
			return
		}

		format, ok := contentFormat(r.Header.Get("Content-Type"))
		if !ok {
			reject(w, http.StatusUnsupportedMediaType, "unsupported Content-Type %q from %s", r.Header.Get("Content-Type"), clientIP)
			return
		}
		if err := codec.Supports(c.version, format); err != nil {
			reject(w, http.StatusUnsupportedMediaType, "%v from %s", err, clientIP)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			reject(w, http.StatusBadRequest, "failed to read body from %s: %v", clientIP, err)
			return
		}

		expected, err := signature.Sign(c.version, body, ts, c.secret)
		if err != nil {
			reject(w, http.StatusInternalServerError, "cannot sign: %v", err)
			return
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
			reject(w, http.StatusUnauthorized, "invalid signature from %s", clientIP)
			return
		}

		if err := c.seen.Add(sig, struct{}{}, cache.DefaultExpiration); err != nil {
			reject(w, http.StatusConflict, "replayed signature from %s", clientIP)
			return
		}

		collection, err := codec.Unmarshal(body, format, c.version)
		if err != nil {
			reject(w, http.StatusBadRequest, "failed to decode %s collection from %s: %v", format, clientIP, err)
			return
		}
		if signature.Session(collection) != collection.Session {
			reject(w, http.StatusBadRequest, "invalid session %q from %s", collection.Session, clientIP)
			return
		}

		c.mu.Lock()
		c.received = append(c.received, collection)
		c.mu.Unlock()

		log.Printf("TrackHandler: accepted %s collection (device=%s, payloads=%d) from %s",
			format, collection.DeviceID, len(collection.Payloads), clientIP)
		w.WriteHeader(http.StatusOK)
	}
}

func contentFormat(header string) (codec.Format, bool) {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", false
	}
	sub, ok := strings.CutPrefix(mediaType, "application/")
	if !ok {
		return "", false
	}
	f, err := codec.ParseFormat(sub)
	if err != nil {
		return "", false
	}
	return f, true
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	return ip
}
