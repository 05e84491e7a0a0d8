package handlers

import (
	"context"
	"net/http"

	"github.com/wolfman30/patient-portal/internal/library"
	"github.com/wolfman30/patient-portal/internal/session"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

type BookmarkStore interface {
	List(ctx context.Context, userID string) ([]library.Bookmark, error)
	Toggle(ctx context.Context, userID string, b library.Bookmark) (bool, []library.Bookmark, error)
}

type HistoryStore interface {
	List(ctx context.Context, userID string) ([]library.HistoryEntry, error)
}

// LibraryHandler serves the patient's bookmarked doctors and past bookings.
type LibraryHandler struct {
	bookmarks BookmarkStore
	history   HistoryStore
	logger    *logging.Logger
}

func NewLibraryHandler(bookmarks BookmarkStore, history HistoryStore, logger *logging.Logger) *LibraryHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LibraryHandler{bookmarks: bookmarks, history: history, logger: logger}
}

func userID(r *http.Request) (string, bool) {
	rec, ok := session.RecordFromContext(r.Context())
	if !ok {
		return "", false
	}
	return rec.User.ID, rec.User.ID != ""
}

func (h *LibraryHandler) Bookmarks(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, h.logger, r, session.ErrNotFound)
		return
	}
	list, err := h.bookmarks.List(r.Context(), uid)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookmarks": nonNil(list)})
}

// POST /api/bookmarks/toggle
func (h *LibraryHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, h.logger, r, session.ErrNotFound)
		return
	}
	var b library.Bookmark
	if err := decodeJSON(r, &b); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	added, list, err := h.bookmarks.Toggle(r.Context(), uid, b)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookmarked": added, "bookmarks": nonNil(list)})
}

func (h *LibraryHandler) History(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, h.logger, r, session.ErrNotFound)
		return
	}
	entries, err := h.history.List(r.Context(), uid)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": nonNil(entries)})
}
