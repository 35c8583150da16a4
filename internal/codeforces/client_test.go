package codeforces

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatGB5/codeforces-submission-bot/internal/models"
)

func TestSignSortsParameters(t *testing.T) {
	params := url.Values{}
	params.Set("time", "1")
	params.Set("handle", "h")
	params.Set("count", "5")
	params.Set("apiKey", "k")

	sum := sha512.Sum512([]byte("abcdef/user.status?apiKey=k&count=5&handle=h&time=1#s"))
	expected := "abcdef" + hex.EncodeToString(sum[:])

	assert.Equal(t, expected, Sign("user.status", params, "s", "abcdef"))
}

func TestRandomNonce(t *testing.T) {
	n := randomNonce()
	require.Len(t, n, 6)
	for _, r := range n {
		assert.Contains(t, nonceAlphabet, string(r))
	}
}

func TestFetchDecodesSubmissions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user.status", r.URL.Path)
		assert.Equal(t, "tourist", r.URL.Query().Get("handle"))
		assert.Equal(t, "5", r.URL.Query().Get("count"))
		assert.Empty(t, r.URL.Query().Get("apiSig"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","result":[
			{"id":102,"contestId":1,"creationTimeSeconds":1700000100,"verdict":"OK","problem":{"contestId":1,"index":"B","name":"Spreadsheets","rating":1600,"tags":["implementation","math"]}},
			{"id":101,"contestId":1,"creationTimeSeconds":1700000000,"verdict":"WRONG_ANSWER","problem":{"contestId":1,"index":"A","name":"Theatre Square","tags":[]}}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	subs, err := client.Fetch(context.Background(), "tourist", 5)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	assert.Equal(t, int64(102), subs[0].ID)
	assert.Equal(t, models.VerdictOK, subs[0].Verdict)
	require.NotNil(t, subs[0].Problem.Rating)
	assert.Equal(t, 1600, *subs[0].Problem.Rating)
	assert.Equal(t, []string{"implementation", "math"}, subs[0].Problem.Tags)
	assert.Nil(t, subs[1].Problem.Rating)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), subs[1].CreatedAt())
}

func TestFetchSignsWhenCredentialsSet(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "key", q.Get("apiKey"))
		assert.Equal(t, "1700000000", q.Get("time"))

		sig := q.Get("apiSig")
		q.Del("apiSig")
		assert.Equal(t, Sign("user.status", q, "secret", "abcdef"), sig)

		_, _ = w.Write([]byte(`{"status":"OK","result":[]}`))
	}))
	defer srv.Close()

	client := NewClient(
		WithBaseURL(srv.URL),
		WithCredentials("key", "secret"),
		withClock(func() time.Time { return fixed }, func() string { return "abcdef" }),
	)
	subs, err := client.Fetch(context.Background(), "tourist", 1)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestFetchRejectedHandle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"FAILED","comment":"handle: User with handle nobody not found"}`))
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Fetch(context.Background(), "nobody", 5)
	require.ErrorIs(t, err, models.ErrFeedRejected)
	assert.Contains(t, err.Error(), "not found")
}

func TestFetchUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"server error", http.StatusBadGateway, "bad gateway"},
		{"html body", http.StatusOK, "<html>maintenance</html>"},
		{"empty status", http.StatusOK, `{"result":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			}))
			defer srv.Close()

			_, err := NewClient(WithBaseURL(srv.URL)).Fetch(context.Background(), "tourist", 5)
			require.ErrorIs(t, err, models.ErrFeedUnavailable)
		})
	}
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := NewClient(WithBaseURL(base), WithTimeout(time.Second)).Fetch(context.Background(), "tourist", 5)
	require.ErrorIs(t, err, models.ErrFeedUnavailable)
}
