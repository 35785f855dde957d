// Package intake is the HTTP endpoint that turns a conversion request into a
// queue message for the worker.
package intake

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"documentgenerator/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Publisher puts a message body on the job queue and returns its message ID.
type Publisher interface {
	Publish(ctx context.Context, body []byte) (string, error)
}

type Handler struct {
	publisher Publisher
	token     string
	logger    *zap.Logger
}

// NewHandler builds the intake handler. An empty token disables the token
// check.
func NewHandler(publisher Publisher, token string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{publisher: publisher, token: token, logger: logger.Named("intake")}
}

// NewRouter registers the intake routes on a fresh engine.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"success": false, "message": "Method not allowed"})
	})

	router.GET("/health", h.Health)

	enqueue := router.Group("")
	enqueue.Use(h.RequireToken())
	{
		enqueue.POST("/", h.Enqueue)
		enqueue.POST("/enqueue", h.Enqueue)
	}
	return router
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RequireToken compares the token query parameter with the configured token.
func (h *Handler) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.token == "" {
			c.Next()
			return
		}
		got := c.Query("token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			h.logger.Warn("access denied, invalid token", zap.String("remote_addr", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "Access denied"})
			return
		}
		c.Next()
	}
}

// Enqueue handles POST / and POST /enqueue.
func (h *Handler) Enqueue(c *gin.Context) {
	h.logger.Info("new request received", zap.String("remote_addr", c.ClientIP()))

	job, err := parseRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	body, err := json.Marshal(job)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}

	id, err := h.publisher.Publish(c.Request.Context(), body)
	if err != nil {
		h.logger.Error("publish failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}

	h.logger.Info("task queued", zap.String("message_id", id), zap.String("file", job.File))
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "success", "data": []any{}})
}

var errNoFile = errors.New("file is required")

// parseRequest accepts the job as a JSON body, as a JSON string in the params
// form field, as params[file]/params[back_url] fields, or as top-level form
// fields.
func parseRequest(c *gin.Context) (models.ConversionJob, error) {
	var job models.ConversionJob

	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&job); err != nil {
			return job, errors.New("request body must be a JSON object")
		}
		return normalize(job)
	}

	if raw := strings.TrimSpace(c.PostForm("params")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return job, errors.New("params must be a JSON object")
		}
		return normalize(job)
	}

	if params, ok := c.GetPostFormMap("params"); ok {
		job.File = params["file"]
		job.BackURL = params["back_url"]
		return normalize(job)
	}

	job.File = c.PostForm("file")
	job.BackURL = c.PostForm("back_url")
	return normalize(job)
}

func normalize(job models.ConversionJob) (models.ConversionJob, error) {
	job.File = strings.TrimSpace(job.File)
	job.BackURL = strings.TrimSpace(job.BackURL)
	if job.File == "" {
		return job, errNoFile
	}
	return job, nil
}
