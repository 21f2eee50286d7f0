// Package rest implements the repository interfaces against the marathon
// backend's HTTP API.
package rest

import (
	"context"

	"github.com/sakif/marathon-client/internal/apiclient"
)

// Caller is the part of apiclient.Client the repositories use.
type Caller interface {
	Do(ctx context.Context, endpoint string, opts apiclient.CallOptions, out any) error
}

var _ Caller = (*apiclient.Client)(nil)
