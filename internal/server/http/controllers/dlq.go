package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aman1205/StreamForge/internal/ledger"
	"github.com/aman1205/StreamForge/internal/runtime"
	dlqsvc "github.com/aman1205/StreamForge/internal/services/dlq"
)

// DLQController handles dead-letter queue endpoints.
type DLQController struct {
	rt *runtime.Runtime
	dq *dlqsvc.Service
}

// NewDLQController creates a new DLQ controller.
func NewDLQController(rt *runtime.Runtime) *DLQController {
	return &DLQController{rt: rt, dq: rt.DLQ()}
}

// RegisterRoutes registers DLQ routes with the given mux.
func (c *DLQController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/dlq", c.handleDLQ)
	mux.HandleFunc("/v1/dlq/get", c.handleGet)
	mux.HandleFunc("/v1/dlq/retry", c.handleRetry)
	mux.HandleFunc("/v1/dlq/retry-all", c.handleRetryAll)
	mux.HandleFunc("/v1/dlq/resolve", c.handleResolve)
	mux.HandleFunc("/v1/dlq/delete", c.handleDelete)
	mux.HandleFunc("/v1/dlq/purge", c.handlePurge)
	mux.HandleFunc("/v1/dlq/stats", c.handleStats)
}

// handleDLQ lists entries on GET and parks a failed delivery on POST.
func (c *DLQController) handleDLQ(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		status := ledger.DLQStatus(q.Get("status"))
		var (
			entries []*ledger.DLQEntry
			err     error
		)
		if groupID := q.Get("groupId"); groupID != "" {
			entries, err = c.dq.ListByGroup(groupID, status)
		} else if topicID := q.Get("topicId"); topicID != "" {
			entries, err = c.dq.ListByTopic(topicID, status)
		} else {
			writeError(w, http.StatusBadRequest, "topicId or groupId parameter is required")
			return
		}
		if err != nil {
			writeFault(w, err)
			return
		}
		writeJSON(w, map[string]any{"entries": entries})
	case http.MethodPost:
		var req dlqSendReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		entry, err := c.dq.Send(r.Context(), dlqsvc.SendParams{
			TopicID:        req.TopicID,
			GroupID:        req.GroupID,
			Partition:      req.Partition,
			OriginalOffset: req.OriginalOffset,
			Payload:        req.Payload,
			Metadata:       req.Metadata,
			ErrorMessage:   req.ErrorMessage,
			ErrorStack:     req.ErrorStack,
			FailureReason:  ledger.FailureReason(req.FailureReason),
			MaxRetries:     req.MaxRetries,
		})
		if err != nil {
			writeFault(w, err)
			return
		}
		writeCreated(w, entry)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleGet returns one entry with its attempt history.
func (c *DLQController) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter is required")
		return
	}
	entry, attempts, err := c.dq.Get(id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, map[string]any{"entry": entry, "attempts": attempts})
}

func (c *DLQController) handleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter is required")
		return
	}
	var req dlqRetryReq
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	entry, err := c.dq.Retry(r.Context(), id, req.DestinationTopicID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, entry)
}

func (c *DLQController) handleRetryAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	topicID := r.URL.Query().Get("topicId")
	if topicID == "" {
		writeError(w, http.StatusBadRequest, "topicId parameter is required")
		return
	}
	results, err := c.dq.RetryAll(r.Context(), topicID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, map[string]any{"total": len(results), "results": results})
}

func (c *DLQController) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter is required")
		return
	}
	entry, err := c.dq.Resolve(id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, entry)
}

func (c *DLQController) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter is required")
		return
	}
	if err := c.dq.Delete(r.Context(), id); err != nil {
		writeFault(w, err)
		return
	}
	writeNoContent(w)
}

// handlePurge removes resolved entries older than the given duration,
// default 24h.
func (c *DLQController) handlePurge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	topicID := q.Get("topicId")
	if topicID == "" {
		writeError(w, http.StatusBadRequest, "topicId parameter is required")
		return
	}
	olderThan := 24 * time.Hour
	if s := q.Get("olderThan"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid olderThan duration")
			return
		}
		olderThan = d
	}
	purged, err := c.dq.Purge(r.Context(), topicID, olderThan)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, map[string]any{"purged": purged})
}

func (c *DLQController) handleStats(w http.ResponseWriter, r *http.Request) {
	topicID := r.URL.Query().Get("topicId")
	if topicID == "" {
		writeError(w, http.StatusBadRequest, "topicId parameter is required")
		return
	}
	stats, err := c.dq.Stats(topicID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, stats)
}
