package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/ravent/pkg/session"
)

type recordedRequest struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
	Body          string
}

func newTestServer(t *testing.T, status int, respBody string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		reqs = append(reqs, recordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			ContentType:   r.Header.Get("Content-Type"),
			Body:          string(b),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func newAuthedStore(t *testing.T) *session.Store {
	t.Helper()
	s := session.NewStore(session.NewMemoryStorage())
	require.NoError(t, s.Set(context.Background(), "acc", "ref", "alice"))
	return s
}

func TestGateway_AttachesBearerAndSendsJSON(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusOK, `{"username":"alice"}`)
	g, err := New(srv.URL+"/api/", newAuthedStore(t))
	require.NoError(t, err)

	resp, err := g.Request(context.Background(), http.MethodPost, "/accounts/profile/", map[string]string{"x": "y"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Username string `json:"username"`
	}
	require.NoError(t, resp.Decode(&out))
	require.Equal(t, "alice", out.Username)

	require.Len(t, *reqs, 1)
	r := (*reqs)[0]
	require.Equal(t, "/api/accounts/profile/", r.Path)
	require.Equal(t, "Bearer acc", r.Authorization)
	require.Equal(t, "application/json", r.ContentType)
	require.JSONEq(t, `{"x":"y"}`, r.Body)
}

func TestGateway_NoHeaderWithoutSession(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusOK, `[]`)
	g, err := New(srv.URL, session.NewStore(session.NewMemoryStorage()))
	require.NoError(t, err)

	_, err = g.Request(context.Background(), http.MethodGet, "/agenticai/files/", nil)
	require.NoError(t, err)
	require.Equal(t, "", (*reqs)[0].Authorization)
	require.Equal(t, "", (*reqs)[0].ContentType)
}

func TestGateway_WithoutAuthAndWithBearer(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusOK, `{}`)
	g, err := New(srv.URL, newAuthedStore(t))
	require.NoError(t, err)

	_, err = g.Request(context.Background(), http.MethodPost, "/accounts/login/", nil, WithoutAuth())
	require.NoError(t, err)
	_, err = g.Request(context.Background(), http.MethodGet, "/accounts/profile/", nil, WithBearer("fresh"))
	require.NoError(t, err)

	require.Equal(t, "", (*reqs)[0].Authorization)
	require.Equal(t, "Bearer fresh", (*reqs)[1].Authorization)
}

func TestGateway_ContentTypeOverride(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusCreated, `{}`)
	g, err := New(srv.URL, newAuthedStore(t))
	require.NoError(t, err)

	_, err = g.Request(context.Background(), http.MethodPost, "/agenticai/files/", []byte("raw"),
		WithContentType("multipart/form-data; boundary=abc"))
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data; boundary=abc", (*reqs)[0].ContentType)
	require.Equal(t, "raw", (*reqs)[0].Body)
}

func TestGateway_401ClearsSession(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusUnauthorized, `{"detail":"Given token not valid for any token type"}`)
	store := newAuthedStore(t)
	g, err := New(srv.URL, store)
	require.NoError(t, err)

	_, err = g.Request(context.Background(), http.MethodGet, "/agenticai/files/", nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrSessionInvalid))
	require.Equal(t, KindAuth, Classify(err))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	require.False(t, store.IsAuthenticated(context.Background()))
	sess, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, sess.IsZero())
}

func TestGateway_401OnAnyEndpointEvenWithoutAuth(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusUnauthorized, `{}`)
	store := newAuthedStore(t)
	g, err := New(srv.URL, store)
	require.NoError(t, err)

	_, err = g.Request(context.Background(), http.MethodPost, "/accounts/login/", nil, WithoutAuth())
	require.ErrorIs(t, err, ErrSessionInvalid)
	require.False(t, store.IsAuthenticated(context.Background()))
}

func TestGateway_OtherStatusesPassThrough(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusBadRequest, `{"password":["too short"]}`)
	store := newAuthedStore(t)
	g, err := New(srv.URL, store)
	require.NoError(t, err)

	_, err = g.Request(context.Background(), http.MethodPost, "/accounts/register/", nil)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	require.JSONEq(t, `{"password":["too short"]}`, string(statusErr.Body))
	require.False(t, errors.Is(err, ErrSessionInvalid))
	require.True(t, store.IsAuthenticated(context.Background()))
}

func TestGateway_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	store := newAuthedStore(t)
	g, err := New(url, store)
	require.NoError(t, err)

	_, err = g.Request(context.Background(), http.MethodGet, "/accounts/profile/", nil)
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	require.Equal(t, KindNetwork, Classify(err))
	require.True(t, store.IsAuthenticated(context.Background()))
}

func TestGateway_ExactlyOneAttempt(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusServiceUnavailable, ``)
	g, err := New(srv.URL, newAuthedStore(t))
	require.NoError(t, err)

	_, err = g.Request(context.Background(), http.MethodGet, "/agenticai/files/", nil)
	require.Error(t, err)
	require.Len(t, *reqs, 1)
	require.Equal(t, KindUnknown, Classify(err))
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", session.NewStore(session.NewMemoryStorage()))
	require.Error(t, err)
	_, err = New("http://x", nil)
	require.Error(t, err)
}

func TestResponse_DecodeEmpty(t *testing.T) {
	var v map[string]any
	require.NoError(t, (&Response{}).Decode(&v))
	require.Nil(t, v)

	r := &Response{Body: json.RawMessage(`{"a":1}`)}
	require.NoError(t, r.Decode(&v))
	require.Equal(t, float64(1), v["a"])
}
