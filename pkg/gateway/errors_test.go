package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestFirstFieldMessage(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{"single field", `{"password":["too short"]}`, "too short", true},
		{"keeps payload order", `{"username":["taken"],"password":["too short"]}`, "taken", true},
		{"reverse order", `{"password":["too short"],"username":["taken"]}`, "too short", true},
		{"detail string", `{"detail":"No active account found"}`, "No active account found", true},
		{"skips empty field", `{"email":[],"password":["too short","too common"]}`, "too short", true},
		{"nested", `{"profile":{"age":["must be positive"]}}`, "must be positive", true},
		{"array body", `["nope"]`, "", false},
		{"not json", `<html>oops</html>`, "", false},
		{"empty", ``, "", false},
		{"no messages", `{"a":[],"b":{}}`, "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := FirstFieldMessage([]byte(c.body))
			require.Equal(t, c.ok, ok)
			require.Equal(t, c.want, got)
		})
	}
}

func TestUserMessage(t *testing.T) {
	const fallback = "Registration failed. Please try again."

	require.Equal(t, "", UserMessage(nil, fallback))

	validation := &StatusError{Method: http.MethodPost, Path: "/accounts/register/", StatusCode: 400, Body: []byte(`{"password":["too short"]}`)}
	require.Equal(t, KindValidation, Classify(validation))
	require.Equal(t, "too short", UserMessage(validation, fallback))
	require.Equal(t, "too short", UserMessage(errors.Wrap(validation, "register"), fallback))

	serverErr := &StatusError{StatusCode: 500, Body: []byte(`{"detail":"boom"}`)}
	require.Equal(t, KindUnknown, Classify(serverErr))
	require.Equal(t, fallback, UserMessage(serverErr, fallback))

	unstructured := &StatusError{StatusCode: 404, Body: []byte(`not found`)}
	require.Equal(t, fallback, UserMessage(unstructured, fallback))

	netErr := &NetworkError{Method: "GET", URL: "http://x", Err: context.DeadlineExceeded}
	require.Equal(t, NetworkErrorMessage, UserMessage(netErr, fallback))
	require.True(t, errors.Is(netErr, context.DeadlineExceeded))

	authErr := &SessionInvalidError{Status: &StatusError{StatusCode: 401, Body: []byte(`{"detail":"expired"}`)}}
	require.Equal(t, KindAuth, Classify(authErr))
	require.Equal(t, SessionExpiredErrorMessage, UserMessage(authErr, fallback))

	require.Equal(t, fallback, UserMessage(errors.New("something else"), fallback))
}
