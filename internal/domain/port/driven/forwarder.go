package driven

import (
	"context"
	"net/http"

	"github.com/ericfisherdev/keyrelay/internal/domain/model"
)

// UpstreamForwarder issues the rewritten outbound call for a leased
// credential. The returned response is the upstream's verbatim; the caller
// owns the response body.
type UpstreamForwarder interface {
	Forward(ctx context.Context, cred *model.Credential, inbound *http.Request) (*http.Response, error)
}
