// Package httptransport exposes the pipeline and the review workflow over HTTP.
package httptransport

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikey/applytrack/internal/classifier"
	"github.com/mikey/applytrack/internal/core"
	"github.com/mikey/applytrack/internal/notify"
	"github.com/mikey/applytrack/internal/review"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Ingestor runs syncs and classification batches
type Ingestor interface {
	Sync(ctx context.Context, userID string) (*core.SyncRun, error)
	ClassifyPending(ctx context.Context, userID string, limit int) (*core.SyncRun, error)
	Runs(ctx context.Context, userID string, limit int) ([]core.SyncRun, error)
}

// Reviewer applies review actions
type Reviewer interface {
	Queue(ctx context.Context, userID string, limit int) ([]core.Message, error)
	Approve(ctx context.Context, userID, messageID string) (*review.Decision, error)
	EditApprove(ctx context.Context, userID, messageID string, edits review.Edits) (*review.Decision, error)
	Reject(ctx context.Context, userID, messageID string) (*core.Message, error)
	Override(ctx context.Context, userID, messageID string) (*core.Message, *classifier.Outcome, error)
}

// Notifier derives reminders
type Notifier interface {
	Project(ctx context.Context, userID string) ([]notify.Notification, error)
}

// Tracker is the read side of the application records
type Tracker interface {
	ListApplications(ctx context.Context, userID string) ([]core.Application, error)
	GetApplication(ctx context.Context, userID, id string) (*core.Application, error)
	ListStatusChanges(ctx context.Context, applicationID string) ([]core.StatusChange, error)
}

// Pinger reports store health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the services behind the routes
type Dependencies struct {
	Ingestor Ingestor
	Reviewer Reviewer
	Notifier Notifier
	Tracker  Tracker
	Health   Pinger
	Logger   *zap.Logger
}

// Handler holds the route handlers
type Handler struct {
	ingestor Ingestor
	reviewer Reviewer
	notifier Notifier
	tracker  Tracker
	health   Pinger
	logger   *zap.Logger
}

// NewRouter builds the gin engine with every route registered
func NewRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(recovery(logger))
	router.Use(requestLogger(logger))

	h := &Handler{
		ingestor: deps.Ingestor,
		reviewer: deps.Reviewer,
		notifier: deps.Notifier,
		tracker:  deps.Tracker,
		health:   deps.Health,
		logger:   logger,
	}

	router.GET("/healthz", h.healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	users := router.Group("/users/:user")
	{
		users.POST("/sync", h.sync)
		users.POST("/classify", h.classify)
		users.GET("/runs", h.runs)

		users.GET("/queue", h.queue)
		users.POST("/messages/:id/approve", h.approve)
		users.POST("/messages/:id/edit-approve", h.editApprove)
		users.POST("/messages/:id/reject", h.reject)
		users.POST("/messages/:id/override", h.override)

		users.GET("/applications", h.listApplications)
		users.GET("/applications/:id", h.getApplication)
		users.GET("/notifications", h.notifications)
	}

	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "route not found", nil)
	})

	return router
}
