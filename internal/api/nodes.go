package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/grote-beer/MySensors/internal/audit"
	"github.com/grote-beer/MySensors/internal/node"
)

// handleListNodes returns every node the registry knows.
func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.nodes.List(r.Context())
	if err != nil {
		s.logger.Error("listing nodes", "error", err)
		writeInternalError(w, "failed to list nodes")
		return
	}
	if nodes == nil {
		nodes = []node.Node{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"count": len(nodes),
	})
}

// handleGetNode returns one node with its sensors.
func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeIDParam(w, r)
	if !ok {
		return
	}

	n, err := s.nodes.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, node.ErrNodeNotFound) {
			writeNotFound(w, "node not found")
			return
		}
		s.logger.Error("getting node", "node_id", id, "error", err)
		writeInternalError(w, "failed to get node")
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// handleDeleteNode removes a node and its sensors from the registry. The
// node reappears as soon as it is heard from again.
func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeIDParam(w, r)
	if !ok {
		return
	}

	if err := s.nodes.Forget(r.Context(), id); err != nil {
		if errors.Is(err, node.ErrNodeNotFound) {
			writeNotFound(w, "node not found")
			return
		}
		s.logger.Error("forgetting node", "node_id", id, "error", err)
		writeInternalError(w, "failed to delete node")
		return
	}
	s.logger.Info("node forgotten", "node_id", id)
	s.recordAudit(r, audit.ActionNodeForget, &id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// nodeIDParam parses the {id} URL parameter as a node id, writing a 400
// response when it is not one.
func nodeIDParam(w http.ResponseWriter, r *http.Request) (uint8, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		writeBadRequest(w, "node id must be a number between 0 and 255")
		return 0, false
	}
	return uint8(id), true
}
