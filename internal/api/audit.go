package api

import (
	"net/http"
	"strconv"

	"github.com/grote-beer/MySensors/internal/audit"
)

// recordAudit stores an operator action. Failures are logged and never
// fail the request that caused them.
func (s *Server) recordAudit(r *http.Request, action string, nodeID *uint8, details map[string]any) {
	if s.audit == nil {
		return
	}
	requestID, _ := r.Context().Value(ctxKeyRequestID).(string) //nolint:errcheck // set by requestIDMiddleware
	entry := &audit.Entry{
		Action:     action,
		NodeID:     nodeID,
		RequestID:  requestID,
		RemoteAddr: r.RemoteAddr,
		Details:    details,
	}
	if err := s.audit.Record(r.Context(), entry); err != nil {
		s.logger.Warn("recording audit entry", "action", action, "error", err)
	}
}

// handleListAudit returns the audit trail, most recent first. Query
// parameters: action, node, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeUnavailable(w, "audit trail is not available")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{Action: q.Get("action")}
	if v := q.Get("node"); v != "" {
		id, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			writeBadRequest(w, "node must be a number between 0 and 255")
			return
		}
		n := uint8(id)
		filter.NodeID = &n
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeBadRequest(w, name+" must be a number")
				return
			}
			*dst = n
		}
	}

	page, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
