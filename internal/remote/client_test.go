package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(srv.URL, "test-key", 2*time.Second, logger)
}

func Test_Client_Select(t *testing.T) {
	// given
	var gotPath, gotFilter, gotAPIKey string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFilter = r.URL.Query().Get("id")
		gotAPIKey = r.Header.Get("apikey")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"p1","name":"Milk"}]`))
	})

	// when
	rows, err := client.Select(context.Background(), TableProducts, Filters{"id": "p1"})

	// then
	require.NoError(t, err)
	assert.Equal(t, "/rest/v1/products", gotPath)
	assert.Equal(t, "eq.p1", gotFilter)
	assert.Equal(t, "test-key", gotAPIKey)
	require.Len(t, rows, 1)
	assert.Equal(t, "Milk", rows[0]["name"])
}

func Test_Client_Insert_ReturnsRepresentation(t *testing.T) {
	// given
	var gotPrefer string
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Get("Prefer")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":"p-42","name":"Milk"}]`))
	})

	// when
	rows, err := client.Insert(context.Background(), TableProducts, map[string]any{"name": "Milk"})

	// then
	require.NoError(t, err)
	assert.Equal(t, "return=representation", gotPrefer)
	assert.Equal(t, "Milk", gotBody["name"])
	require.Len(t, rows, 1)
	assert.Equal(t, "p-42", rows[0]["id"])
}

func Test_Client_Update_UsesPatch(t *testing.T) {
	// given
	var gotMethod, gotFilter string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotFilter = r.URL.Query().Get("id")
		w.WriteHeader(http.StatusNoContent)
	})

	// when
	err := client.Update(context.Background(), TableProducts, Filters{"id": "p1"}, map[string]any{"stock": 3})

	// then
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "eq.p1", gotFilter)
}

func Test_Client_ErrorClassification(t *testing.T) {
	testCases := []struct {
		name       string
		status     int
		body       string
		assertFunc func(t *testing.T, err error)
	}{
		{
			name:   "policy recursion code",
			status: http.StatusInternalServerError,
			body:   `{"code":"42P17","message":"infinite recursion detected in policy"}`,
			assertFunc: func(t *testing.T, err error) {
				assert.True(t, IsPolicyRecursion(err))
				assert.True(t, IsFatal(err))
			},
		},
		{
			name:   "permission denied code",
			status: http.StatusForbidden,
			body:   `{"code":"42501","message":"permission denied for table sales"}`,
			assertFunc: func(t *testing.T, err error) {
				assert.True(t, IsPermissionDenied(err))
				assert.True(t, IsFatal(err))
			},
		},
		{
			name:   "generic failure is transient",
			status: http.StatusBadGateway,
			body:   `{"message":"upstream unavailable"}`,
			assertFunc: func(t *testing.T, err error) {
				assert.False(t, IsFatal(err))
			},
		},
		{
			name:   "unparseable error body",
			status: http.StatusServiceUnavailable,
			body:   "<html>down</html>",
			assertFunc: func(t *testing.T, err error) {
				assert.False(t, IsFatal(err))
				var re *Error
				require.ErrorAs(t, err, &re)
				assert.Equal(t, http.StatusServiceUnavailable, re.Status)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			// when
			_, err := client.Select(context.Background(), TableSales, nil)

			// then
			require.Error(t, err)
			tc.assertFunc(t, err)
		})
	}
}

func Test_Client_Timeout(t *testing.T) {
	// given: a server slower than the client's bound
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})
	client.timeout = 50 * time.Millisecond

	// when
	err := client.Ping(context.Background())

	// then
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func Test_Client_RefreshToken(t *testing.T) {
	// given
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/v1/token" {
			_, _ = w.Write([]byte(`{"access_token":"fresh-token"}`))
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	})

	// when
	require.NoError(t, client.RefreshToken(context.Background(), "refresh-me"))
	require.NoError(t, client.Ping(context.Background()))

	// then: subsequent requests carry the refreshed token
	assert.Equal(t, "Bearer fresh-token", gotAuth)
}
