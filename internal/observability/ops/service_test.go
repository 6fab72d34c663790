package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"minerva/internal/storage"
	logx "minerva/pkg/logx"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

type fakeHistory struct{ recs []storage.PromptRecord }

func (f fakeHistory) Recent(_ context.Context, limit int) ([]storage.PromptRecord, error) {
	if limit < len(f.recs) {
		return f.recs[:limit], nil
	}
	return f.recs, nil
}

func get(t *testing.T, url string, header http.Header) *http.Response {
	t.Helper()
	tr := &http.Transport{DisableKeepAlives: true}
	t.Cleanup(tr.CloseIdleConnections)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := (&http.Client{Transport: tr, Timeout: 2 * time.Second}).Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func stop(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestHistoryAndAuth(t *testing.T) {
	h := fakeHistory{recs: []storage.PromptRecord{{ID: "p2", Text: "a red box"}, {ID: "p1", Text: "a blue box"}}}
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0", Token: "sekret"}, h, logx.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer stop(t, s)
	base := "http://" + s.Addr()

	assert.Equal(t, http.StatusUnauthorized, get(t, base+"/healthz", nil).StatusCode)
	assert.Equal(t, http.StatusOK, get(t, base+"/healthz?token=sekret", nil).StatusCode)

	resp := get(t, base+"/debug/history?limit=1", http.Header{"Authorization": {"Bearer sekret"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recs []storage.PromptRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "p2", recs[0].ID)

	assert.Equal(t, http.StatusBadRequest, get(t, base+"/debug/history?limit=x&token=sekret", nil).StatusCode)
}

func TestHistoryDisabled(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, nil, logx.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer stop(t, s)
	assert.Equal(t, http.StatusNotFound, get(t, "http://"+s.Addr()+"/debug/history", nil).StatusCode)
}

func TestRefusesInsecureBind(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, nil, logx.Nop())
	assert.ErrorIs(t, s.Start(context.Background()), ErrInsecureBind)
	assert.Empty(t, s.Addr())
}

func TestReconfigure(t *testing.T) {
	s := New(Config{}, nil, logx.Nop())
	require.NoError(t, s.Start(context.Background()))
	assert.Empty(t, s.Addr(), "disabled service does not bind")

	require.NoError(t, s.Reconfigure(context.Background(), Config{Enabled: true, Addr: "127.0.0.1:0"}))
	require.NotEmpty(t, s.Addr())

	require.NoError(t, s.Reconfigure(context.Background(), Config{}))
	assert.Empty(t, s.Addr())
}

func TestIsLoopbackAddr(t *testing.T) {
	assert.True(t, isLoopbackAddr("127.0.0.1:6060"))
	assert.True(t, isLoopbackAddr("localhost:1"))
	assert.True(t, isLoopbackAddr("[::1]:1"))
	assert.False(t, isLoopbackAddr(":6060"))
	assert.False(t, isLoopbackAddr("10.0.0.1:6060"))
	assert.False(t, isLoopbackAddr("nonsense"))
}
