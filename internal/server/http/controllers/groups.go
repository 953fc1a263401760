package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/aman1205/StreamForge/internal/runtime"
	groupsvc "github.com/aman1205/StreamForge/internal/services/groups"
)

// GroupsController handles consumer-group coordination endpoints.
type GroupsController struct {
	rt *runtime.Runtime
	gr *groupsvc.Service
}

// NewGroupsController creates a new groups controller.
func NewGroupsController(rt *runtime.Runtime) *GroupsController {
	return &GroupsController{rt: rt, gr: rt.Groups()}
}

// RegisterRoutes registers group routes with the given mux.
func (c *GroupsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/groups", c.handleGroups)
	mux.HandleFunc("/v1/groups/get", c.handleGet)
	mux.HandleFunc("/v1/groups/delete", c.handleDelete)
	mux.HandleFunc("/v1/groups/join", c.handleJoin)
	mux.HandleFunc("/v1/groups/leave", c.handleLeave)
	mux.HandleFunc("/v1/groups/heartbeat", c.handleHeartbeat)
	mux.HandleFunc("/v1/groups/consumers", c.handleConsumers)
	mux.HandleFunc("/v1/groups/offsets", c.handleOffsets)
	mux.HandleFunc("/v1/groups/offsets/reset", c.handleResetOffset)
	mux.HandleFunc("/v1/groups/lag", c.handleLag)
}

// handleGroups lists groups of a topic on GET and creates one on POST.
func (c *GroupsController) handleGroups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		topicID := r.URL.Query().Get("topicId")
		if topicID == "" {
			writeError(w, http.StatusBadRequest, "topicId parameter is required")
			return
		}
		list, err := c.gr.ListByTopic(topicID)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, map[string]any{"groups": list})
	case http.MethodPost:
		var req createGroupReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		g, err := c.gr.Create(r.Context(), req.TopicID, req.Name)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeCreated(w, g)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (c *GroupsController) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter is required")
		return
	}
	g, err := c.gr.Get(id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, g)
}

func (c *GroupsController) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter is required")
		return
	}
	if err := c.gr.Delete(r.Context(), id); err != nil {
		writeFault(w, err)
		return
	}
	writeNoContent(w)
}

// handleJoin registers a consumer and returns its partition assignment.
func (c *GroupsController) handleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req consumerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	consumer, err := c.gr.RegisterConsumer(r.Context(), req.GroupID, req.ConsumerID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, consumer)
}

func (c *GroupsController) handleLeave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req consumerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := c.gr.UnregisterConsumer(r.Context(), req.GroupID, req.ConsumerID); err != nil {
		writeFault(w, err)
		return
	}
	writeNoContent(w)
}

func (c *GroupsController) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req consumerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	consumer, err := c.gr.Heartbeat(r.Context(), req.GroupID, req.ConsumerID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, consumer)
}

func (c *GroupsController) handleConsumers(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		writeError(w, http.StatusBadRequest, "groupId parameter is required")
		return
	}
	consumers, err := c.gr.ListConsumers(groupID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, map[string]any{"consumers": consumers})
}

// handleOffsets lists committed offsets on GET and commits one on POST.
func (c *GroupsController) handleOffsets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		groupID := r.URL.Query().Get("groupId")
		if groupID == "" {
			writeError(w, http.StatusBadRequest, "groupId parameter is required")
			return
		}
		offsets, err := c.gr.GetOffsets(groupID)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, map[string]any{"offsets": offsets})
	case http.MethodPost:
		var req commitOffsetReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		offset, err := c.gr.CommitOffset(req.GroupID, req.Partition, req.Offset)
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, offset)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (c *GroupsController) handleResetOffset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req commitOffsetReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := c.gr.ResetOffset(req.GroupID, req.Partition, req.Offset); err != nil {
		writeFault(w, err)
		return
	}
	writeNoContent(w)
}

func (c *GroupsController) handleLag(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		writeError(w, http.StatusBadRequest, "groupId parameter is required")
		return
	}
	lag, err := c.gr.Lag(groupID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, map[string]any{"partitions": lag})
}
