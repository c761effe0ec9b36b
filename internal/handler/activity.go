package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/frostbox/internal/activity"
	"github.com/dukerupert/frostbox/internal/model"
	"github.com/dukerupert/frostbox/internal/store"
)

type ActivityHandler struct {
	activities *store.ActivityStore
	logger     *slog.Logger
}

func NewActivityHandler(activities *store.ActivityStore, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{activities: activities, logger: logger}
}

type activityEntry struct {
	model.Activity
	Description string `json:"description"`
}

// List answers GET /api/activity?limit=&offset=.
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", activity.DefaultLimit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	session, err := openSession(r, h.logger)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer session.Close()
	ledger := activity.New(session, h.activities, h.logger)
	defer ledger.Close()

	entries, err := ledger.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]activityEntry, len(entries))
	for i, e := range entries {
		out[i] = activityEntry{Activity: e, Description: activity.Describe(e)}
	}
	writeJSON(w, http.StatusOK, out)
}
