package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func deployRequest(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/publish/sessions/s1/deploy", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req.WithContext(WithAccount(req.Context(), "0xabc"))
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, CriticalIdempotencyTTL, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = fmt.Fprintf(w, `{"echo":%q,"call":%d}`, string(body), calls)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, deployRequest(`{"a":1}`, "k1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, deployRequest(`{"a":1}`, "k1"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusAccepted, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	for _, ttl := range store.ttls {
		assert.Equal(t, CriticalIdempotencyTTL, ttl)
	}
}

func TestIdempotencyRejectsBodyMismatch(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, 0, nil)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), deployRequest(`{"a":1}`, "k1"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, deployRequest(`{"a":2}`, "k1"))

	require.Equal(t, http.StatusConflict, resp.Code)
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	assert.Equal(t, string(pkgerrors.CodeIdempotency), env.Error.Code)
}

func TestIdempotencyRequiresKey(t *testing.T) {
	resp := httptest.NewRecorder()
	Idempotency(newFakeStore(), 0, nil)(okHandler()).ServeHTTP(resp, deployRequest(`{}`, ""))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestIdempotencyDoesNotStoreServerErrors(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), deployRequest(`{}`, "k1"))
	handler.ServeHTTP(httptest.NewRecorder(), deployRequest(`{}`, "k1"))

	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}

func TestIdempotencyScopesKeysByAccount(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), deployRequest(`{}`, "k1"))
	other := deployRequest(`{}`, "k1")
	handler.ServeHTTP(httptest.NewRecorder(), other.WithContext(WithAccount(other.Context(), "0xdef")))

	assert.Equal(t, 2, calls)
}
