package events

import (
	"context"

	"github.com/go-go-golems/ravent/pkg/gateway"
)

type stubRequester struct{}

func (stubRequester) Request(context.Context, string, string, any, ...gateway.RequestOption) (*gateway.Response, error) {
	return &gateway.Response{StatusCode: 200, Body: []byte(`{"answer":"hi"}`)}, nil
}
