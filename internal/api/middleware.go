package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"sentient.health/symptom-ai/internal/core"
	"sentient.health/symptom-ai/internal/logger"
)

func corsMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// userRateLimiter hands out one token bucket per user for the endpoints that
// call the hosted model.
type userRateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

// newUserRateLimiter allows perMinute requests per user per minute. A
// non-positive value disables limiting.
func newUserRateLimiter(perMinute int) *userRateLimiter {
	l := &userRateLimiter{limit: rate.Inf, limiters: make(map[int64]*rate.Limiter)}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
		l.burst = perMinute
	}
	return l
}

func (l *userRateLimiter) limiter(userID int64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = limiter
	}
	return limiter
}

// Middleware must run after JWTAuthMiddleware.
func (l *userRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		if !l.limiter(user.ID).Allow() {
			logger.Debug("Rate limit exceeded for user %d on %s", user.ID, r.URL.Path)
			http.Error(w, "Too many requests, please wait a moment", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// eventStream writes chat updates as server-sent events. Headers are sent
// with the first event so earlier failures can still use a plain status code.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *eventStream) start() {
	if s.started {
		return
	}
	s.started = true
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
}

func (s *eventStream) send(msg core.ChatMessage) {
	s.start()
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Error encoding chat event: %v", err)
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	s.flusher.Flush()
}

func (s *eventStream) done() {
	s.start()
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flusher.Flush()
}
