package middleware

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"qrparking/pkg/auth"
	apperrors "qrparking/pkg/errors"
)

// ReplayedHeader marks a response served from the idempotency cache.
const ReplayedHeader = "Idempotent-Replayed"

// IdempotencyStore tracks client keys through claim, then complete or
// abandon.
type IdempotencyStore interface {
	// Claim returns the stored response when key already completed, or
	// busy when another request holds it. Otherwise the caller now holds key.
	Claim(key string) (cached *CachedResponse, busy bool)
	Complete(key string, response *CachedResponse)
	Abandon(key string)
	Stop()
}

type CachedResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	CreatedAt  time.Time
}

type idempotencyEntry struct {
	response *CachedResponse // nil while in flight
	claimed  time.Time
}

type InMemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*idempotencyEntry
	ttl     time.Duration
	stopCh  chan struct{}
	now     func() time.Time
}

func NewInMemoryIdempotencyStore(ttl time.Duration) *InMemoryIdempotencyStore {
	store := &InMemoryIdempotencyStore{
		entries: make(map[string]*idempotencyEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	go store.cleanup()

	return store
}

func (s *InMemoryIdempotencyStore) Claim(key string) (*CachedResponse, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok && !s.stale(entry, now) {
		if entry.response == nil {
			return nil, true
		}
		return entry.response, false
	}
	s.entries[key] = &idempotencyEntry{claimed: now}
	return nil, false
}

func (s *InMemoryIdempotencyStore) Complete(key string, response *CachedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	response.CreatedAt = s.now()
	s.entries[key] = &idempotencyEntry{response: response, claimed: response.CreatedAt}
}

func (s *InMemoryIdempotencyStore) Abandon(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok && entry.response == nil {
		delete(s.entries, key)
	}
}

func (s *InMemoryIdempotencyStore) stale(entry *idempotencyEntry, now time.Time) bool {
	return now.Sub(entry.claimed) > s.ttl
}

func (s *InMemoryIdempotencyStore) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := s.now()
			s.mu.Lock()
			for key, entry := range s.entries {
				if s.stale(entry, now) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

func (s *InMemoryIdempotencyStore) Stop() {
	close(s.stopCh)
}

// recordingWriter passes the response through while keeping a copy of it.
type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(status int) {
	if rw.status == 0 {
		rw.status = status
	}
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// Idempotency replays the first successful response to a POST carrying
// headerName. A retry that arrives while the first attempt is still running
// is answered with 409. Failed attempts release the key so the client may
// retry.
func Idempotency(store IdempotencyStore, headerName string) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = "Idempotency-Key"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := idempotencyKey(r, headerName)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			cached, busy := store.Claim(key)
			switch {
			case busy:
				writeError(w, apperrors.Conflict("A request with this idempotency key is still in progress"))
				return
			case cached != nil:
				replay(w, cached)
				return
			}

			rw := &recordingWriter{ResponseWriter: w}
			completed := false
			defer func() {
				if !completed {
					store.Abandon(key)
				}
			}()

			next.ServeHTTP(rw, r)

			if rw.status < 200 || rw.status >= 300 {
				return
			}
			store.Complete(key, &CachedResponse{
				StatusCode: rw.status,
				Headers:    w.Header().Clone(),
				Body:       bytes.Clone(rw.body.Bytes()),
			})
			completed = true
		})
	}
}

// idempotencyKey scopes the client key to the caller and route so one
// user's key never replays another user's response.
func idempotencyKey(r *http.Request, headerName string) string {
	key := r.Header.Get(headerName)
	if key == "" || r.Method != http.MethodPost {
		return ""
	}
	owner := "anonymous"
	if id, ok := auth.IdentityFrom(r.Context()); ok {
		owner = id.UserID
	}
	return owner + "|" + r.URL.Path + "|" + key
}

func replay(w http.ResponseWriter, cached *CachedResponse) {
	dst := w.Header()
	for key, values := range cached.Headers {
		dst[key] = append([]string(nil), values...)
	}
	dst.Set(ReplayedHeader, "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}
