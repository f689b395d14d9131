package httptransport

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/review"
)

const (
	defaultQueueLimit = 50
	defaultRunsLimit  = 20
	maxListLimit      = 500
)

func (h *Handler) healthz(c *gin.Context) {
	if h.health != nil {
		if err := h.health.Ping(c.Request.Context()); err != nil {
			Error(c, http.StatusServiceUnavailable, "store unavailable", nil)
			return
		}
	}
	Success(c, gin.H{"status": "ok"})
}

func (h *Handler) sync(c *gin.Context) {
	run, err := h.ingestor.Sync(c.Request.Context(), c.Param("user"))
	if err != nil {
		h.fail(c, err, runData(run))
		return
	}
	Success(c, run)
}

func (h *Handler) classify(c *gin.Context) {
	limit, err := queryLimit(c, 0)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	run, err := h.ingestor.ClassifyPending(c.Request.Context(), c.Param("user"), limit)
	if err != nil {
		h.fail(c, err, runData(run))
		return
	}
	Success(c, run)
}

func (h *Handler) runs(c *gin.Context) {
	limit, err := queryLimit(c, defaultRunsLimit)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	runs, err := h.ingestor.Runs(c.Request.Context(), c.Param("user"), limit)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	Success(c, runs)
}

func (h *Handler) queue(c *gin.Context) {
	limit, err := queryLimit(c, defaultQueueLimit)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	msgs, err := h.reviewer.Queue(c.Request.Context(), c.Param("user"), limit)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	Success(c, msgs)
}

func (h *Handler) approve(c *gin.Context) {
	decision, err := h.reviewer.Approve(c.Request.Context(), c.Param("user"), c.Param("id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	Success(c, decision)
}

func (h *Handler) editApprove(c *gin.Context) {
	var edits review.Edits
	if err := c.ShouldBindJSON(&edits); err != nil {
		h.fail(c, &core.ValidationError{Field: "body", Msg: "must be a JSON object of edits"}, nil)
		return
	}
	decision, err := h.reviewer.EditApprove(c.Request.Context(), c.Param("user"), c.Param("id"), edits)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	Success(c, decision)
}

func (h *Handler) reject(c *gin.Context) {
	msg, err := h.reviewer.Reject(c.Request.Context(), c.Param("user"), c.Param("id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	Success(c, msg)
}

func (h *Handler) override(c *gin.Context) {
	msg, outcome, err := h.reviewer.Override(c.Request.Context(), c.Param("user"), c.Param("id"))
	if err != nil {
		var data any
		if msg != nil {
			data = gin.H{"message": msg}
		}
		h.fail(c, err, data)
		return
	}
	Success(c, gin.H{"message": msg, "outcome": outcome})
}

func (h *Handler) listApplications(c *gin.Context) {
	apps, err := h.tracker.ListApplications(c.Request.Context(), c.Param("user"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	Success(c, apps)
}

func (h *Handler) getApplication(c *gin.Context) {
	ctx := c.Request.Context()
	app, err := h.tracker.GetApplication(ctx, c.Param("user"), c.Param("id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	history, err := h.tracker.ListStatusChanges(ctx, app.ID)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	Success(c, gin.H{"application": app, "history": history})
}

func (h *Handler) notifications(c *gin.Context) {
	list, err := h.notifier.Project(c.Request.Context(), c.Param("user"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	Success(c, list)
}

// queryLimit parses ?limit=, falling back to def when absent
func queryLimit(c *gin.Context, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxListLimit {
		return 0, &core.ValidationError{Field: "limit", Msg: "must be between 1 and " + strconv.Itoa(maxListLimit)}
	}
	return n, nil
}

func runData(run *core.SyncRun) any {
	if run == nil {
		return nil
	}
	return run
}
