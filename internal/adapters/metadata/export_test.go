package metadata

import (
	"net/http"

	"go.trai.ch/codev/internal/core/ports"
)

// NewClientForTest exports newClientWithHTTP for testing purposes.
func NewClientForTest(logger ports.Logger, opts Options, client *http.Client) (*Client, error) {
	return newClientWithHTTP(logger, opts, client)
}
