package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/icrar/govospace/pkg/errtypes"
	"github.com/icrar/govospace/pkg/events"
	"github.com/icrar/govospace/pkg/types"
)

// Detail levels for node reads.
const (
	detailMin        = "min"
	detailMax        = "max"
	detailProperties = "properties"
)

// nodePath normalizes the path carried in the wildcard route segment.
func nodePath(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "*")
	path, err := types.NormalizePath(raw)
	if err != nil {
		return "", errtypes.InvalidURI(err.Error())
	}
	return path, nil
}

// readOptions parses the detail and limit query options. Reads without
// an explicit detail level serve the full node.
func (s *Server) readOptions(r *http.Request) (detail string, limit int, err error) {
	detail = r.URL.Query().Get("detail")
	switch detail {
	case "":
		detail = detailMax
	case detailMin, detailMax, detailProperties:
	default:
		return "", 0, errtypes.InvalidArgument("detail must be min, max or properties")
	}

	limit = s.cfg.DirectoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n <= 0 {
			return "", 0, errtypes.InvalidArgument("limit must be a positive integer")
		}
		if n < limit {
			limit = n
		}
	}
	return detail, limit, nil
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	path, err := nodePath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	detail, limit, err := s.readOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	node, err := s.store.Directory(path, identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch detail {
	case detailMin:
		node.Properties = nil
	case detailProperties:
		node.Nodes = nil
	case detailMax:
		if node.Type.IsDataVariant() {
			node.Accepts = s.backend.AcceptViews(node)
			node.Provides = s.backend.ProvideViews(node)
		}
	}
	if len(node.Nodes) > limit {
		node.Nodes = node.Nodes[:limit]
	}

	xml, err := s.codec.EncodeNode(node)
	if err != nil {
		s.writeError(w, r, errtypes.InternalError(err.Error()))
		return
	}
	s.writeXML(w, http.StatusOK, xml)
}

func (s *Server) createNode(w http.ResponseWriter, r *http.Request) {
	path, err := nodePath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, errtypes.InternalError(err.Error()))
		return
	}
	node, err := s.codec.ParseNode(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if node.Path != path {
		s.writeError(w, r, errtypes.InvalidURI("node uri does not match request path"))
		return
	}

	created, err := s.store.CreateNode(node, identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.backend.CreateStorageNode(r.Context(), created); err != nil {
		s.logger.Error().Err(err).Str("path", created.Path).Msg("storage allocation failed")
	}
	created.Accepts = s.backend.AcceptViews(created)
	created.Provides = s.backend.ProvideViews(created)
	s.publishNode(events.EventNodeCreated, created.Path)

	xml, err := s.codec.EncodeNode(created)
	if err != nil {
		s.writeError(w, r, errtypes.InternalError(err.Error()))
		return
	}
	s.writeXML(w, http.StatusCreated, xml)
}

func (s *Server) setNodeProperties(w http.ResponseWriter, r *http.Request) {
	path, err := nodePath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, errtypes.InternalError(err.Error()))
		return
	}
	node, err := s.codec.ParseNode(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if node.Path != path {
		s.writeError(w, r, errtypes.InvalidURI("node uri does not match request path"))
		return
	}

	updated, err := s.store.UpdateProperties(node, identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publishNode(events.EventNodeUpdated, updated.Path)

	xml, err := s.codec.EncodeNode(updated)
	if err != nil {
		s.writeError(w, r, errtypes.InternalError(err.Error()))
		return
	}
	s.writeXML(w, http.StatusOK, xml)
}

func (s *Server) deleteNode(w http.ResponseWriter, r *http.Request) {
	path, err := nodePath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	removed, err := s.store.Delete(path, identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Metadata is gone; byte-level cleanup failures are logged only.
	for _, node := range removed {
		if err := s.backend.DeleteStorageNode(r.Context(), node); err != nil {
			s.logger.Error().Err(err).Str("path", node.Path).Msg("storage cleanup failed")
		}
	}
	s.publishNode(events.EventNodeDeleted, path)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getProtocols(w http.ResponseWriter, r *http.Request) {
	xml, err := s.codec.EncodeProtocols()
	if err != nil {
		s.writeError(w, r, errtypes.InternalError(err.Error()))
		return
	}
	s.writeXML(w, http.StatusOK, xml)
}

func (s *Server) getProperties(w http.ResponseWriter, r *http.Request) {
	contains, err := s.store.ContainedPropertyURIs()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	xml, err := s.codec.EncodeProperties(types.KnownProperties(), contains)
	if err != nil {
		s.writeError(w, r, errtypes.InternalError(err.Error()))
		return
	}
	s.writeXML(w, http.StatusOK, xml)
}

func (s *Server) publishNode(t events.EventType, path string) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(events.New(t, path, map[string]string{"path": path}))
}
