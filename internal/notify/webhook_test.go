package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loyalty/internal/ledger"
)

func TestWebhook_DeliversSignedJSON(t *testing.T) {
	var gotBody []byte
	var gotSig, gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		gotID = r.Header.Get(EventIDHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(WebhookConfig{URL: srv.URL, Secret: "s3cret"})
	require.NoError(t, wh.Notify(context.Background(), testEvent("e1")))

	var ev ledger.ChangeEvent
	require.NoError(t, json.Unmarshal(gotBody, &ev))
	assert.Equal(t, int64(110), ev.NewBalance)
	assert.Equal(t, "e1", gotID)
	assert.Equal(t, Sign(gotBody, "s3cret"), gotSig)

	deliveries := wh.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, http.StatusNoContent, deliveries[0].StatusCode)
}

func TestWebhook_NoSecretNoSignature(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
	}))
	defer srv.Close()

	wh := NewWebhook(WebhookConfig{URL: srv.URL})
	require.NoError(t, wh.Notify(context.Background(), testEvent("e1")))
	assert.Empty(t, gotSig)
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(WebhookConfig{URL: srv.URL, MaxRetries: 3, RetryDelay: time.Millisecond})
	require.NoError(t, wh.Notify(context.Background(), testEvent("e1")))

	deliveries := wh.Deliveries()
	require.Len(t, deliveries, 3)
	assert.Equal(t, http.StatusBadGateway, deliveries[0].StatusCode)
	assert.NotEmpty(t, deliveries[0].Error)
	assert.Equal(t, 3, deliveries[2].Attempt)
}

func TestWebhook_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook(WebhookConfig{URL: srv.URL, MaxRetries: 2, RetryDelay: time.Millisecond})
	err := wh.Notify(context.Background(), testEvent("e1"))
	assert.ErrorContains(t, err, "status 500")
	assert.Len(t, wh.Deliveries(), 2)
}

func TestWebhook_NoURLSkips(t *testing.T) {
	wh := NewWebhook(WebhookConfig{})
	assert.NoError(t, wh.Notify(context.Background(), testEvent("e1")))
	assert.Empty(t, wh.Deliveries())
}

func TestWebhook_HistoryIsBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	wh := NewWebhook(WebhookConfig{URL: srv.URL, MaxHistory: 3})
	for _, id := range []string{"e1", "e2", "e3", "e4", "e5"} {
		require.NoError(t, wh.Notify(context.Background(), testEvent(id)))
	}

	var ids []string
	for _, d := range wh.Deliveries() {
		ids = append(ids, d.EventID)
	}
	assert.Equal(t, []string{"e3", "e4", "e5"}, ids, "oldest attempts are dropped")
}

func TestWebhook_DefaultHistoryCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	wh := NewWebhook(WebhookConfig{URL: srv.URL})
	for i := 0; i < DefaultMaxHistory+50; i++ {
		require.NoError(t, wh.Notify(context.Background(), testEvent(fmt.Sprintf("e%d", i))))
	}

	deliveries := wh.Deliveries()
	require.Len(t, deliveries, DefaultMaxHistory)
	assert.Equal(t, "e50", deliveries[0].EventID)
	assert.Equal(t, fmt.Sprintf("e%d", DefaultMaxHistory+49), deliveries[len(deliveries)-1].EventID)
}

func TestWebhook_NegativeHistoryKeepsNone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	wh := NewWebhook(WebhookConfig{URL: srv.URL, MaxHistory: -1})
	require.NoError(t, wh.Notify(context.Background(), testEvent("e1")))
	assert.Empty(t, wh.Deliveries())
}

func TestSign_Deterministic(t *testing.T) {
	a := Sign([]byte(`{"a":1}`), "k")
	assert.Equal(t, a, Sign([]byte(`{"a":1}`), "k"))
	assert.NotEqual(t, a, Sign([]byte(`{"a":1}`), "other"))
	assert.Len(t, a, 64)
}
