package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"credence/internal/assistant"
	"credence/internal/rbac"
	"credence/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

type fakeChat struct {
	resp *types.Response
	err  error
	got  assistant.Request
}

func (f *fakeChat) Handle(ctx context.Context, req assistant.Request) (*types.Response, error) {
	f.got = req
	return f.resp, f.err
}

type fakeFiles struct {
	docs []types.DocumentRef
}

func (f *fakeFiles) List(ctx context.Context, groupID string) ([]types.DocumentRef, error) {
	return f.docs, nil
}

type fakeAuth struct {
	members map[string]bool // key: group/user
}

func (f *fakeAuth) Authorize(ctx context.Context, userID, groupID string) (types.Authorization, error) {
	if !f.members[groupID+"/"+userID] {
		return types.Authorization{}, rbac.ErrNotMember
	}
	return types.Authorization{Role: types.RoleMember}, nil
}

func newTestServer(chat *fakeChat, files *fakeFiles) *httptest.Server {
	auth := &fakeAuth{members: map[string]bool{"g1/u1": true}}
	return httptest.NewServer(NewServer(Config{}, chat, files, auth, nil).Handler())
}

func post(t *testing.T, url, userID, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
		req.Header.Set(HeaderUserName, "Ana")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestChatEndpoint(t *testing.T) {
	chat := &fakeChat{resp: &types.Response{ResponseText: "Done.", IsCommand: true}}
	srv := newTestServer(chat, &fakeFiles{})
	defer srv.Close()

	resp := post(t, srv.URL+"/v1/groups/g1/chat", "u1", `{"message":"assign it"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Done.", body["responseText"])
	assert.Equal(t, true, body["isCommand"])
	assert.NotContains(t, body, "requiresPermission")

	assert.Equal(t, "g1", chat.got.GroupID)
	assert.Equal(t, "assign it", chat.got.Message)
	assert.Equal(t, types.Caller{UserID: "u1", Name: "Ana"}, chat.got.Caller)
}

func TestChatErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		user   string
		body   string
		err    error
		status int
	}{
		{"no identity", "", `{"message":"hi"}`, nil, http.StatusUnauthorized},
		{"bad json", "u1", `{"message":`, nil, http.StatusBadRequest},
		{"empty message", "u1", `{"message":""}`, assistant.ErrEmptyMessage, http.StatusBadRequest},
		{"not a member", "u1", `{"message":"hi"}`, rbac.ErrNotMember, http.StatusForbidden},
		{"unknown group", "u1", `{"message":"hi"}`, types.ErrNotFound, http.StatusNotFound},
		{"unexpected", "u1", `{"message":"hi"}`, errors.New("boom"), http.StatusInternalServerError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&fakeChat{err: tc.err}, &fakeFiles{})
			defer srv.Close()

			resp := post(t, srv.URL+"/v1/groups/g1/chat", tc.user, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)

			var body errorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
			assert.NotContains(t, body.Error, "boom")
		})
	}
}

func TestFilesEndpoint(t *testing.T) {
	uploaded := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	files := &fakeFiles{docs: []types.DocumentRef{
		{ID: "d1", Title: "Q3 Budget.xlsx", MediaType: "application/vnd.ms-excel", SizeBytes: 2048, UploadedAt: uploaded},
	}}
	srv := newTestServer(&fakeChat{}, files)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/groups/g1/files", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderUserID, "u1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Files []fileEntry `json:"files"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Files, 1)
	assert.Equal(t, "Q3 Budget.xlsx", body.Files[0].Title)
	assert.True(t, uploaded.Equal(body.Files[0].UploadedAt))

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/v1/groups/g2/files", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderUserID, "u1")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp2.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(&fakeChat{}, &fakeFiles{})
	defer srv.Close()

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(&fakeChat{}, &fakeFiles{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/groups/g1/chat")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHeaderIdentity(t *testing.T) {
	_, err := HeaderIdentity{}.Identify(context.Background(), map[string]string{ClaimUserID: "  "})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	c, err := HeaderIdentity{}.Identify(context.Background(), map[string]string{ClaimUserID: "u1", ClaimEmail: "a@b.c"})
	require.NoError(t, err)
	assert.Equal(t, types.Caller{UserID: "u1", Email: "a@b.c"}, c)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := NewServer(Config{Addr: "127.0.0.1:0"}, &fakeChat{}, &fakeFiles{}, &fakeAuth{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
