// SPDX-License-Identifier: MPL-2.0

package host

import (
	"context"
	"net/http"

	"github.com/invowk/lifespan/pkg/lifespan"
)

type stateKey struct{}

// WithState returns a copy of ctx carrying rs.
func WithState(ctx context.Context, rs *lifespan.RequestState) context.Context {
	return context.WithValue(ctx, stateKey{}, rs)
}

// StateFrom returns the RequestState admitted for this request.
func StateFrom(ctx context.Context) (*lifespan.RequestState, bool) {
	rs, ok := ctx.Value(stateKey{}).(*lifespan.RequestState)
	return rs, ok && rs != nil
}

// MustState returns the RequestState for r. It panics when called outside
// the admission middleware.
func MustState(r *http.Request) *lifespan.RequestState {
	rs, ok := StateFrom(r.Context())
	if !ok {
		panic("host: request was not admitted through the lifespan middleware")
	}
	return rs
}
