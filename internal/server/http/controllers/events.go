package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/aman1205/StreamForge/internal/runtime"
	eventsvc "github.com/aman1205/StreamForge/internal/services/events"
)

// EventsController handles the data-plane endpoints: publish, consume,
// acknowledgements, and live subscribe via Server-Sent Events.
type EventsController struct {
	rt *runtime.Runtime
	ev *eventsvc.Service
}

// NewEventsController creates a new events controller.
func NewEventsController(rt *runtime.Runtime) *EventsController {
	return &EventsController{rt: rt, ev: rt.Events()}
}

// RegisterRoutes registers event routes with the given mux.
func (c *EventsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/events/publish", c.handlePublish)
	mux.HandleFunc("/v1/events/consume", c.handleConsume)
	mux.HandleFunc("/v1/events/consume-group", c.handleConsumeGroup)
	mux.HandleFunc("/v1/events/ack", c.handleAck)
	mux.HandleFunc("/v1/events/nack", c.handleNack)
	mux.HandleFunc("/v1/events/pending", c.handlePending)
	mux.HandleFunc("/v1/events/subscribe", c.handleSubscribeSSE)
}

func (c *EventsController) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req publishReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	e, err := c.ev.Publish(r.Context(), eventsvc.PublishParams{
		TopicID:   req.TopicID,
		Partition: req.Partition,
		Payload:   req.Payload,
		Metadata:  req.Metadata,
		TTLMs:     req.TTLMs,
	})
	if err != nil {
		writeFault(w, err)
		return
	}
	writeCreated(w, e)
}

func (c *EventsController) handleConsume(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, err := c.ev.Consume(eventsvc.ConsumeParams{
		TopicID:   q.Get("topicId"),
		Partition: parseInt(q.Get("partition"), 0),
		After:     q.Get("after"),
		Limit:     parseLimit(q.Get("limit")),
		Filter:    q.Get("filter"),
	})
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, map[string]any{"events": events})
}

func (c *EventsController) handleConsumeGroup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	groupID := q.Get("groupId")
	consumerID := q.Get("consumerId")
	partition := parseInt(q.Get("partition"), 0)
	limit := c.rt.Backpressure().BatchSize(groupID, consumerID, parseLimit(q.Get("limit")))
	events, err := c.ev.ConsumeFromGroup(r.Context(), eventsvc.GroupConsumeParams{
		GroupID:    groupID,
		ConsumerID: consumerID,
		Partition:  partition,
		Limit:      limit,
		AutoCommit: parseBool(q.Get("autoCommit")),
	})
	if err != nil {
		writeFault(w, err)
		return
	}
	// Lag lookup is best-effort; the poll is still recorded without it.
	var lag int64
	if lags, lerr := c.rt.Groups().Lag(groupID); lerr == nil {
		for _, pl := range lags {
			if pl.Partition == partition {
				lag = pl.Lag
				break
			}
		}
	}
	c.rt.Backpressure().RecordPoll(groupID, consumerID, len(events), lag)
	writeJSON(w, map[string]any{"events": events, "batchSize": limit})
}

func (c *EventsController) handleAck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req ackReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	acked, err := c.ev.Acknowledge(req.GroupID, req.ConsumerID, req.Offsets)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, map[string]any{"acknowledged": acked})
}

func (c *EventsController) handleNack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req nackReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := c.ev.Nack(req.GroupID, req.ConsumerID, req.Offset, req.Reason, req.Requeue); err != nil {
		writeFault(w, err)
		return
	}
	writeNoContent(w)
}

func (c *EventsController) handlePending(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		writeError(w, http.StatusBadRequest, "groupId parameter is required")
		return
	}
	pending, err := c.ev.PendingAcks(groupID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, map[string]any{"pending": pending})
}

// handleSubscribeSSE streams live publishes of one topic as Server-Sent
// Events until the client disconnects.
func (c *EventsController) handleSubscribeSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	topicID := r.URL.Query().Get("topicId")
	ch, cancel, err := c.ev.Subscribe(topicID, parseLimit(r.URL.Query().Get("buffer")))
	if err != nil {
		writeFault(w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)
	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: "))
			_ = json.NewEncoder(w).Encode(e)
			_, _ = w.Write([]byte("\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}
