package fakeapi

import (
	"net/http"
	"strconv"

	"github.com/ukydev/fleet-console/internal/models"
)

const defaultActivityLimit = 20

// recordLocked prepends an activity entry. Callers hold s.mu and broadcast the
// returned entry after unlocking.
func (s *Server) recordLocked(userID string, entry models.ActivityLogEntry) models.ActivityLogEntry {
	entry.ID = newID()
	if userID != "" {
		entry.User = models.RefTo(userID)
	}
	if entry.Type == "" {
		entry.Type = models.ActivityOther
	}
	entry.CreatedAt = s.stamp()
	s.activity = append([]models.ActivityLogEntry{entry}, s.activity...)
	return entry
}

// Record appends an activity entry and pushes it to live subscribers.
func (s *Server) Record(userID string, entry models.ActivityLogEntry) models.ActivityLogEntry {
	s.mu.Lock()
	logged := s.recordLocked(userID, entry)
	s.mu.Unlock()
	s.hub.Broadcast(EventNewActivity, logged)
	return logged
}

func (s *Server) listActivity(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	s.mu.RLock()
	if limit > len(s.activity) {
		limit = len(s.activity)
	}
	entries := append([]models.ActivityLogEntry(nil), s.activity[:limit]...)
	s.mu.RUnlock()
	if entries == nil {
		entries = []models.ActivityLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
