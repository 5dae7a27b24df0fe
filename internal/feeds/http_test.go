package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPCandidateSource_Candidates(t *testing.T) {
	var gotSince, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"token_id":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","observed_liquidity":12.5,"discovered_at":"2026-01-02T03:04:05Z"},
			{"token_id":"not-a-mint","observed_liquidity":99}
		]`))
	}))
	defer srv.Close()

	src := NewHTTPCandidateSource(srv.URL+"/tokens", WithAPIKey("secret"))
	since := time.UnixMilli(1700000000000)

	items, err := src.Candidates(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", items[0].TokenID)
	assert.Equal(t, 12.5, items[0].ObservedLiquidity)
	assert.Equal(t, "1700000000000", gotSince)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestHTTPCandidateSource_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewHTTPCandidateSource(srv.URL).Candidates(context.Background(), time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
