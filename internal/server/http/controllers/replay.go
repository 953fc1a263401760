package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/aman1205/StreamForge/internal/runtime"
	replaysvc "github.com/aman1205/StreamForge/internal/services/replay"
)

// ReplayController handles replay session endpoints.
type ReplayController struct {
	rt *runtime.Runtime
	rp *replaysvc.Service
}

// NewReplayController creates a new replay controller.
func NewReplayController(rt *runtime.Runtime) *ReplayController {
	return &ReplayController{rt: rt, rp: rt.Replay()}
}

// RegisterRoutes registers replay routes with the given mux.
func (c *ReplayController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/replays", c.handleReplays)
	mux.HandleFunc("/v1/replays/get", c.handleGet)
	mux.HandleFunc("/v1/replays/pause", c.handlePause)
	mux.HandleFunc("/v1/replays/resume", c.handleResume)
	mux.HandleFunc("/v1/replays/stop", c.handleStop)
	mux.HandleFunc("/v1/replays/count", c.handleCount)
	mux.HandleFunc("/v1/replays/snapshots", c.handleSnapshots)
	mux.HandleFunc("/v1/replays/snapshots/get", c.handleGetSnapshot)
}

// handleReplays lists sessions on GET and starts one on POST.
func (c *ReplayController) handleReplays(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, map[string]any{"sessions": c.rp.List()})
	case http.MethodPost:
		var req replayStartReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		snap, err := c.rp.Start(replaysvc.StartParams{
			TopicID:            req.TopicID,
			DestinationTopicID: req.DestinationTopicID,
			Mode:               replaysvc.Mode(req.Mode),
			StartOffset:        req.StartOffset,
			EndOffset:          req.EndOffset,
			FromTimestampMs:    req.FromTimestampMs,
			ToTimestampMs:      req.ToTimestampMs,
			Speed:              req.Speed,
		})
		if err != nil {
			writeFault(w, err)
			return
		}
		writeCreated(w, snap)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (c *ReplayController) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter is required")
		return
	}
	snap, err := c.rp.Get(id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, snap)
}

func (c *ReplayController) handlePause(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(w, r, c.rp.Pause)
}

func (c *ReplayController) handleResume(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(w, r, c.rp.Resume)
}

func (c *ReplayController) handleStop(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(w, r, c.rp.Stop)
}

// handleCount reports how many entries a replay over the given offset
// window would cover.
func (c *ReplayController) handleCount(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	topicID := q.Get("topicId")
	if topicID == "" {
		writeError(w, http.StatusBadRequest, "topicId parameter is required")
		return
	}
	count, err := c.rp.EventCount(topicID, q.Get("from"), q.Get("to"))
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, map[string]any{"count": count})
}

// handleSnapshots lists a topic's snapshots on GET and captures one on POST.
func (c *ReplayController) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		topicID := r.URL.Query().Get("topicId")
		if topicID == "" {
			writeError(w, http.StatusBadRequest, "topicId parameter is required")
			return
		}
		writeJSON(w, map[string]any{"snapshots": c.rp.ListSnapshots(topicID)})
	case http.MethodPost:
		var req snapshotReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		snap, err := c.rp.CreateSnapshot(req.TopicID, req.Name)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeCreated(w, snap)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (c *ReplayController) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter is required")
		return
	}
	snap, err := c.rp.GetSnapshot(id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, snap)
}

func (c *ReplayController) lifecycle(w http.ResponseWriter, r *http.Request, op func(string) (*replaysvc.Snapshot, error)) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter is required")
		return
	}
	snap, err := op(id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, snap)
}
