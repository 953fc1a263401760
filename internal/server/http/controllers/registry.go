package controllers

import (
	"net/http"

	"github.com/aman1205/StreamForge/internal/runtime"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes
// and manages the lifecycle of individual controllers.
type ControllerRegistry struct {
	general *GeneralController
	topics  *TopicsController
	groups  *GroupsController
	events  *EventsController
	dlq     *DLQController
	replay  *ReplayController
}

// NewControllerRegistry creates a new controller registry.
//
// It initializes all controllers with the provided runtime.
func NewControllerRegistry(rt *runtime.Runtime) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		topics:  NewTopicsController(rt),
		groups:  NewGroupsController(rt),
		events:  NewEventsController(rt),
		dlq:     NewDLQController(rt),
		replay:  NewReplayController(rt),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
//
// This method sets up all HTTP endpoints for the StreamForge service:
// health and metrics, the topic registry, consumer-group coordination,
// event publish/consume, the dead-letter queue, and replay sessions.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.topics.RegisterRoutes(mux)
	r.groups.RegisterRoutes(mux)
	r.events.RegisterRoutes(mux)
	r.dlq.RegisterRoutes(mux)
	r.replay.RegisterRoutes(mux)
}
