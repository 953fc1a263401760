package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/aman1205/StreamForge/internal/runtime"
	topicsvc "github.com/aman1205/StreamForge/internal/services/topics"
)

// TopicsController handles topic registry endpoints.
type TopicsController struct {
	rt *runtime.Runtime
	tp *topicsvc.Service
}

// NewTopicsController creates a new topics controller.
func NewTopicsController(rt *runtime.Runtime) *TopicsController {
	return &TopicsController{rt: rt, tp: rt.Topics()}
}

// RegisterRoutes registers topic routes with the given mux.
func (c *TopicsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/topics", c.handleTopics)
	mux.HandleFunc("/v1/topics/get", c.handleGet)
	mux.HandleFunc("/v1/topics/delete", c.handleDelete)
	mux.HandleFunc("/v1/topics/purge-data", c.handlePurgeData)
	mux.HandleFunc("/v1/topics/stats", c.handleStats)
}

// handleTopics lists topics on GET and creates one on POST.
func (c *TopicsController) handleTopics(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := c.tp.List(r.URL.Query().Get("workspaceId"))
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, map[string]any{"topics": list})
	case http.MethodPost:
		var req createTopicReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		topic, err := c.tp.Create(r.Context(), topicsvc.CreateParams{
			WorkspaceID: req.WorkspaceID,
			Name:        req.Name,
			Partitions:  req.Partitions,
			RetentionMs: req.RetentionMs,
			Schema:      req.Schema,
		})
		if err != nil {
			writeFault(w, err)
			return
		}
		writeCreated(w, topic)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleGet returns one topic by id, or by workspace and name.
func (c *TopicsController) handleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if id := q.Get("id"); id != "" {
		topic, err := c.tp.Get(id)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, topic)
		return
	}
	topic, err := c.tp.GetByName(q.Get("workspaceId"), q.Get("name"))
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, topic)
}

func (c *TopicsController) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter is required")
		return
	}
	if err := c.tp.Delete(r.Context(), id); err != nil {
		writeFault(w, err)
		return
	}
	writeNoContent(w)
}

// handlePurgeData drops a topic's partition streams without touching the
// registry row.
func (c *TopicsController) handlePurgeData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter is required")
		return
	}
	if err := c.tp.PurgeData(r.Context(), id); err != nil {
		writeFault(w, err)
		return
	}
	writeNoContent(w)
}

func (c *TopicsController) handleStats(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter is required")
		return
	}
	stats, err := c.tp.TopicStats(id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, stats)
}
