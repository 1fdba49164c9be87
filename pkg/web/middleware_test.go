package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_UserContext(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantUserID string
		wantFound  bool
	}{
		{
			name:       "stores the header value in the context",
			header:     "cashier-1",
			wantUserID: "cashier-1",
			wantFound:  true,
		},
		{
			name:      "passes the request through when the header is absent",
			header:    "",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// given
			var gotUserID string
			var gotFound bool
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUserID, gotFound = GetUserID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(XUserId, tt.header)
			}
			rec := httptest.NewRecorder()

			// when
			UserContext(next).ServeHTTP(rec, req)

			// then
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantFound, gotFound)
			assert.Equal(t, tt.wantUserID, gotUserID)
		})
	}
}
