package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tutorbase/internal/models"
	"tutorbase/internal/realtime"
	"tutorbase/internal/services"
	"tutorbase/internal/sync"
)

// SyncHandler serves GET /tasks/sync: one websocket per open schedule
// surface, backed by its own sync engine. The socket streams the task view
// and the connection health outward and accepts mutations and window changes
// inward.
type SyncHandler struct {
	feed         sync.ChangeFeed
	taskService  services.TaskService
	pollInterval time.Duration
}

func NewSyncHandler(feed sync.ChangeFeed, taskService services.TaskService, pollInterval time.Duration) *SyncHandler {
	return &SyncHandler{feed: feed, taskService: taskService, pollInterval: pollInterval}
}

// inbound frames
type syncRequest struct {
	Type string `json:"type"` // "mutate" | "set_window"

	// set_window
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`

	// mutate
	Action string       `json:"action,omitempty"` // create | update | delete | toggle_complete
	TaskID string       `json:"task_id,omitempty"`
	Task   *taskRequest `json:"task,omitempty"`
}

func (h *SyncHandler) Stream(c *gin.Context) {
	userID, roleID := getUserAndRole(c)

	start, err := models.ParseDateOnly(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be YYYY-MM-DD"})
		return
	}
	end, err := models.ParseDateOnly(c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be YYYY-MM-DD"})
		return
	}
	scope, err := scopeForCaller(userID, roleID, c.Query("student"))
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	engine, err := sync.NewEngine(sync.EngineConfig{
		Scope:        scope,
		WindowStart:  start,
		WindowEnd:    end,
		Feed:         h.feed,
		Fetcher:      sync.FetcherFunc(h.taskService.GetWindow),
		PollInterval: h.pollInterval,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := realtime.Upgrade(c.Writer, c.Request)
	if err != nil {
		log.Printf("[sync][ws] upgrade failed for userID=%d: err=%v", userID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "websocket upgrade failed"})
		return
	}

	if err := engine.Start(); err != nil {
		log.Printf("[sync][ws] engine start failed for userID=%d: err=%v", userID, err)
		conn.Close()
		return
	}
	log.Printf("[sync][ws] open userID=%d scope=%+v window=%s..%s", userID, scope, start, end)

	gateway := sync.NewGateway(engine, h.taskService, nil)

	done := make(chan struct{})
	writerDone := make(chan struct{})
	go h.writeLoop(conn, engine, done, writerDone)

	// reader loop, owns the connection lifetime
	caller := sync.Caller{UserID: userID, RoleID: roleID}
	for {
		var req syncRequest
		if err := conn.ReadJSON(&req); err != nil {
			break
		}
		switch req.Type {
		case "mutate":
			h.handleMutate(c.Request.Context(), conn, gateway, caller, req)
		case "set_window":
			h.handleSetWindow(conn, engine, req)
		case "":
			// ignore empty keepalive frames
		default:
			conn.WriteJSON(gin.H{"type": "error", "error": "unknown frame type"})
		}
	}

	close(done)
	engine.Close()
	<-writerDone
	conn.Close()
	log.Printf("[sync][ws] closed userID=%d", userID)
}

// writeLoop pushes the current view on every engine update, health
// transitions as they happen, and completion signals for the client to
// surface. It never reads the socket.
func (h *SyncHandler) writeLoop(conn *realtime.Conn, engine *sync.Engine, done <-chan struct{}, writerDone chan<- struct{}) {
	defer close(writerDone)

	healthCh, cancelHealth := engine.Health().Subscribe()
	defer cancelHealth()

	send := func(v interface{}) bool {
		if err := conn.WriteJSON(v); err != nil {
			return false
		}
		return true
	}

	// initial frames so the client renders before the first change
	if !send(gin.H{"type": "health", "state": engine.Health().State()}) {
		return
	}
	if !send(viewFrame(engine)) {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-engine.Updates():
			if !send(viewFrame(engine)) {
				return
			}
		case state := <-healthCh:
			if !send(gin.H{"type": "health", "state": state}) {
				return
			}
		case t := <-engine.Completions():
			if !send(gin.H{"type": "completed", "task": t}) {
				return
			}
		}
	}
}

func viewFrame(engine *sync.Engine) gin.H {
	start, end := engine.Window()
	return gin.H{
		"type":  "view",
		"start": start,
		"end":   end,
		"tasks": engine.Tasks(),
	}
}

func (h *SyncHandler) handleMutate(ctx context.Context, conn *realtime.Conn, gateway *sync.Gateway, caller sync.Caller, req syncRequest) {
	m := sync.Mutation{
		Kind:   sync.MutationKind(req.Action),
		TaskID: req.TaskID,
	}
	if req.Task != nil {
		task, err := req.Task.toTask()
		if err != nil {
			conn.WriteJSON(gin.H{"type": "mutation_result", "ok": false, "error": err.Error()})
			return
		}
		m.Task = task
	}

	task, err := gateway.Mutate(ctx, caller, m)
	if err != nil {
		conn.WriteJSON(gin.H{
			"type":  "mutation_result",
			"ok":    false,
			"code":  mutationErrCode(err),
			"error": err.Error(),
		})
		return
	}
	resp := gin.H{"type": "mutation_result", "ok": true}
	if task != nil {
		resp["task"] = task
	}
	conn.WriteJSON(resp)
}

func mutationErrCode(err error) string {
	switch {
	case errors.Is(err, sync.ErrBusy):
		return "busy"
	case errors.Is(err, sync.ErrForbidden):
		return "forbidden"
	case errors.Is(err, sync.ErrRemoteRejected):
		return "rejected"
	default:
		return "invalid"
	}
}

func (h *SyncHandler) handleSetWindow(conn *realtime.Conn, engine *sync.Engine, req syncRequest) {
	start, err := models.ParseDateOnly(req.Start)
	if err != nil {
		conn.WriteJSON(gin.H{"type": "error", "error": "start must be YYYY-MM-DD"})
		return
	}
	end, err := models.ParseDateOnly(req.End)
	if err != nil {
		conn.WriteJSON(gin.H{"type": "error", "error": "end must be YYYY-MM-DD"})
		return
	}
	if err := engine.SetWindow(start, end); err != nil {
		conn.WriteJSON(gin.H{"type": "error", "error": err.Error()})
	}
}
