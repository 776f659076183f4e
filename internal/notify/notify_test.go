package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpointAcceptsHTTPURL(t *testing.T) {
	ep, ok := ParseEndpoint("http://localhost:9000/secret-token")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:9000/secret-token", ep.URL)
}

func TestParseEndpointRejectsEmptyAndMalformed(t *testing.T) {
	_, ok := ParseEndpoint("")
	assert.False(t, ok)

	_, ok = ParseEndpoint("not-a-url")
	assert.False(t, ok)
}

func TestNewWithNilEndpointIsNoOp(t *testing.T) {
	n := New(nil, nil)
	n.Notify(Event{TaskID: "x/default", Status: "finished"})
	n.Close()
}

func TestNotifierDeliversEventToEndpoint(t *testing.T) {
	var mu sync.Mutex
	var received []Event

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep, ok := ParseEndpoint(srv.URL + "/token")
	require.True(t, ok)

	n := New(ep, nil)
	n.Notify(Event{TaskID: "trim/default", Status: "finished", Timestamp: time.Now()})
	n.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "trim/default", received[0].TaskID)
	assert.Equal(t, "finished", received[0].Status)
}

func TestNotifierSwallowsDeliveryFailure(t *testing.T) {
	ep, ok := ParseEndpoint("http://127.0.0.1:1/token")
	require.True(t, ok)

	n := New(ep, nil)
	n.Notify(Event{TaskID: "trim/default", Status: "failed"})
	n.Close()
}
