/*
Package posix implements the storage backend on a local filesystem.

Containers map to directories and data nodes to regular files under a
configured root. The data-plane handlers serve the upload and download
endpoints advertised during transfer negotiation; URLs carry the job id
so a finished upload can finalize its transfer job.
*/
package posix

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/icrar/govospace/pkg/errtypes"
	"github.com/icrar/govospace/pkg/log"
	"github.com/icrar/govospace/pkg/space"
	"github.com/icrar/govospace/pkg/types"
)

// Views served by this backend.
const (
	ViewAny    = "ivo://ivoa.net/vospace/core#anyview"
	ViewBinary = "ivo://ivoa.net/vospace/core#binaryview"
)

// CompleteFunc is invoked when a data-plane transfer finishes, with the
// job id carried in the endpoint URL.
type CompleteFunc func(jobID string, err error)

// AuthorizeFunc admits a data-plane request before any bytes move: the
// job id must name a running transfer for nodePath in the requested
// direction.
type AuthorizeFunc func(jobID, nodePath string, put bool) error

// Backend is a filesystem-backed storage backend.
type Backend struct {
	root      string
	authorize AuthorizeFunc
	complete  CompleteFunc
	logger    zerolog.Logger
}

// New returns a backend rooted at dir. authorize and onComplete may be
// nil.
func New(dir string, authorize AuthorizeFunc, onComplete CompleteFunc) (*Backend, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Backend{
		root:      dir,
		authorize: authorize,
		complete:  onComplete,
		logger:    log.WithComponent("posix"),
	}, nil
}

func (b *Backend) abs(nodePath string) string {
	return filepath.Join(b.root, filepath.FromSlash(nodePath))
}

// CreateStorageNode allocates the byte-level object for a node.
func (b *Backend) CreateStorageNode(ctx context.Context, node *types.Node) error {
	switch {
	case node.IsContainer():
		return os.MkdirAll(b.abs(node.Path), 0700)
	case node.Type.IsDataVariant():
		if err := os.MkdirAll(filepath.Dir(b.abs(node.Path)), 0700); err != nil {
			return err
		}
		f, err := os.OpenFile(b.abs(node.Path), os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return err
		}
		return f.Close()
	default:
		// Plain and link nodes own no bytes.
		return nil
	}
}

// DeleteStorageNode removes the byte-level object for a node.
func (b *Backend) DeleteStorageNode(ctx context.Context, node *types.Node) error {
	return os.RemoveAll(b.abs(node.Path))
}

// MoveStorageNode renames bytes along with a metadata move.
func (b *Backend) MoveStorageNode(ctx context.Context, srcType types.NodeType, srcPath string, destType types.NodeType, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(b.abs(destPath)), 0700); err != nil {
		return err
	}
	if err := os.Rename(b.abs(srcPath), b.abs(destPath)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CopyStorageNode duplicates bytes along with a metadata copy.
func (b *Backend) CopyStorageNode(ctx context.Context, srcType types.NodeType, srcPath string, destType types.NodeType, destPath string) error {
	if srcType == types.NodeTypeContainer {
		return os.MkdirAll(b.abs(destPath), 0700)
	}
	src, err := os.Open(b.abs(srcPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer src.Close()
	if err := os.MkdirAll(filepath.Dir(b.abs(destPath)), 0700); err != nil {
		return err
	}
	dest, err := os.Create(b.abs(destPath))
	if err != nil {
		return err
	}
	defer dest.Close()
	_, err = io.Copy(dest, src)
	return err
}

// AcceptViews describes the content views a node can receive.
func (b *Backend) AcceptViews(node *types.Node) []types.View {
	if !node.Type.IsDataVariant() {
		return nil
	}
	return []types.View{{URI: ViewAny}}
}

// ProvideViews describes the content views a node can serve.
func (b *Backend) ProvideViews(node *types.Node) []types.View {
	if !node.Type.IsDataVariant() {
		return nil
	}
	return []types.View{{URI: ViewBinary}}
}

// FilterEndpoints keeps the candidates whose protocol matches the
// request and whose direction is legal for it: put protocols serve
// pushes, get protocols serve pulls.
func (b *Backend) FilterEndpoints(ctx context.Context, candidates []space.Endpoint, nodeType types.NodeType, nodePath, protocolURI, direction string) ([]space.Endpoint, error) {
	wantPut := direction == types.DirectionPushToVoSpace
	var out []space.Endpoint
	for _, cand := range candidates {
		if cand.Protocol != protocolURI {
			continue
		}
		if (types.Protocol{URI: cand.Protocol}).IsPut() != wantPut {
			continue
		}
		out = append(out, cand)
	}
	return out, nil
}

// splitDataPath extracts job id and node path from a data-plane URL of
// the form /<job-id>/<node-path>.
func splitDataPath(urlPath string) (jobID, nodePath string, ok bool) {
	trimmed := strings.TrimPrefix(urlPath, "/")
	i := strings.IndexByte(trimmed, '/')
	if i <= 0 || i == len(trimmed)-1 {
		return "", "", false
	}
	return trimmed[:i], trimmed[i+1:], true
}

// admit validates a data-plane request. The node path is normalized
// before it ever touches the filesystem, so traversal segments never
// reach the storage root, and the job id must authorize the operation.
func (b *Backend) admit(r *http.Request, put bool) (jobID, nodePath string, err error) {
	jobID, raw, ok := splitDataPath(r.URL.Path)
	if !ok {
		return "", "", errtypes.InvalidURI("bad data path")
	}
	nodePath, perr := types.NormalizePath(raw)
	if perr != nil || nodePath == "" {
		return "", "", errtypes.InvalidURI("bad data path")
	}
	if b.authorize != nil {
		if err := b.authorize(jobID, nodePath, put); err != nil {
			return "", "", err
		}
	}
	return jobID, nodePath, nil
}

// Upload receives bytes for a push transfer and finalizes the job.
func (b *Backend) Upload(w http.ResponseWriter, r *http.Request) {
	jobID, nodePath, admitErr := b.admit(r, true)
	if admitErr != nil {
		http.Error(w, admitErr.Error(), errtypes.Status(admitErr))
		return
	}
	err := b.receive(nodePath, r.Body)
	if b.complete != nil {
		b.complete(jobID, err)
	}
	if err != nil {
		b.logger.Error().Err(err).Str("path", nodePath).Msg("upload failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (b *Backend) receive(nodePath string, body io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(b.abs(nodePath)), 0700); err != nil {
		return err
	}
	f, err := os.Create(b.abs(nodePath))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, body)
	return err
}

// Download serves bytes for a pull transfer.
func (b *Backend) Download(w http.ResponseWriter, r *http.Request) {
	jobID, nodePath, admitErr := b.admit(r, false)
	if admitErr != nil {
		http.Error(w, admitErr.Error(), errtypes.Status(admitErr))
		return
	}
	f, err := os.Open(b.abs(nodePath))
	if err != nil {
		if b.complete != nil {
			b.complete(jobID, err)
		}
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	_, err = io.Copy(w, f)
	if b.complete != nil {
		b.complete(jobID, err)
	}
}
