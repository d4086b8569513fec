package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeCounter struct {
	counts map[string]int64
	err    error
}

func (f *fakeCounter) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeCounter) RateLimitKey(policy, subject string) string {
	return policy + ":" + subject
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	store := &fakeCounter{}
	handler := RateLimit(NewRateLimitPolicy("Upload", time.Minute, 2), store, nil)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req.WithContext(WithAccount(req.Context(), "0xabc")))
		codes = append(codes, resp.Code)
		if i == 2 {
			assert.Equal(t, "60", resp.Header().Get("Retry-After"))
		}
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.EqualValues(t, 3, store.counts["upload:0xabc"])
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	store := &fakeCounter{}
	handler := RateLimit(NewRateLimitPolicy("deploy", time.Minute, 5), store, nil)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.EqualValues(t, 1, store.counts["deploy:ip:203.0.113.9"])
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	store := &fakeCounter{err: errors.New("unreachable")}
	resp := httptest.NewRecorder()
	RateLimit(NewRateLimitPolicy("upload", 0, 0), store, nil)(okHandler()).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestRateLimitStoreFailure(t *testing.T) {
	store := &fakeCounter{err: errors.New("redis down")}
	resp := httptest.NewRecorder()
	RateLimit(NewRateLimitPolicy("upload", time.Minute, 1), store, nil)(okHandler()).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
