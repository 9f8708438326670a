/*
Package space defines the storage backend contract the transfer engine
consumes, and the endpoint candidates negotiated for data-plane
transfers.

The engine treats the backend as remote and idempotent at endpoint
granularity: metadata commits first, byte-level work follows, and
backend failures surface as job errors rather than metadata rollbacks.
*/
package space

import (
	"context"
	"net/http"

	"github.com/icrar/govospace/pkg/types"
)

// Endpoint is a pre-configured data-plane endpoint candidate.
type Endpoint struct {
	URL            string
	Protocol       string
	SecurityMethod string
}

// Backend is the capability set the transfer engine requires from a
// storage implementation.
type Backend interface {
	// Byte-level allocation and cleanup after metadata commits.
	CreateStorageNode(ctx context.Context, node *types.Node) error
	DeleteStorageNode(ctx context.Context, node *types.Node) error

	// Byte-level counterparts of metadata move and copy.
	MoveStorageNode(ctx context.Context, srcType types.NodeType, srcPath string, destType types.NodeType, destPath string) error
	CopyStorageNode(ctx context.Context, srcType types.NodeType, srcPath string, destType types.NodeType, destPath string) error

	// Content views for max-detail reads.
	AcceptViews(node *types.Node) []types.View
	ProvideViews(node *types.Node) []types.View

	// FilterEndpoints narrows the pre-configured candidates to the ones
	// legal for this transfer.
	FilterEndpoints(ctx context.Context, candidates []Endpoint, nodeType types.NodeType, nodePath, protocolURI, direction string) ([]Endpoint, error)
}

// Storage is the data-plane handler surface invoked by the storage-side
// HTTP process.
type Storage interface {
	Download(w http.ResponseWriter, r *http.Request)
	Upload(w http.ResponseWriter, r *http.Request)
}
