package api

import (
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizinho/internal/domain"
	"github.com/victornm/quizinho/internal/errors"
	"github.com/victornm/quizinho/internal/event"
	"github.com/victornm/quizinho/internal/lifecycle"
	"github.com/victornm/quizinho/internal/retention"
)

const maxWebhookBody = 64 << 10

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Lifecycle    *lifecycle.Service
	Retention    *retention.Service
	Redis        Redis
	PubsubPrefix string
	CronSecret   string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	ls *lifecycle.Service
	rs *retention.Service

	redis      Redis
	prefix     string
	cronSecret string
}

func New(c Config) *API {
	a := &API{
		ls:         c.Lifecycle,
		rs:         c.Retention,
		redis:      c.Redis,
		prefix:     c.PubsubPrefix,
		cronSecret: c.CronSecret,
	}

	r := c.Router.Group("/api")
	r.POST("/quizzes", a.CreateQuiz)
	r.GET("/quizzes/:id", a.GetQuiz)
	r.GET("/invalid-ids", a.ListInvalidIDs)
	r.POST("/webhooks/stripe", a.StripeWebhook)
	r.GET("/cron/cleanup", a.Cleanup)

	// Register event handlers
	if a.redis != nil {
		c.EventBus.Subscribe(func(ctx context.Context, e event.Event) error {
			return a.PublishQuizPaid(ctx, e.(domain.EventQuizPaid))
		}, domain.EventNameQuizPaid)
	}

	return a
}

type (
	CreateQuizRequest struct {
		Questions  []domain.Question `json:"questions"`
		Plan       domain.Plan       `json:"plan"`
		CustomID   string            `json:"customId"`
		PreviousID string            `json:"previousId"`
		Theme      string            `json:"theme"`
	}

	CreateQuizResponse struct {
		QuizURL    string `json:"quizUrl,omitempty"`
		PaymentURL string `json:"paymentUrl,omitempty"`
	}

	CleanupResponse struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Scanned int    `json:"scanned"`
		Deleted int    `json:"deleted"`
		Failed  int    `json:"failed"`
	}
)

// CreateQuiz handles POST /api/quizzes.
func (a *API) CreateQuiz(c *gin.Context) {
	var req CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Validation(errors.WithMessagef("malformed request body"), errors.WithCause(err)))
		return
	}

	resp, err := a.ls.CreateOrUpdateQuiz(c.Request.Context(), lifecycle.CreateQuizRequest{
		Questions:  req.Questions,
		Plan:       req.Plan,
		CustomID:   req.CustomID,
		PreviousID: req.PreviousID,
		Theme:      req.Theme,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, CreateQuizResponse{
		QuizURL:    resp.QuizURL,
		PaymentURL: resp.PaymentURL,
	})
}

// GetQuiz handles GET /api/quizzes/:id.
func (a *API) GetQuiz(c *gin.Context) {
	q, err := a.ls.GetQuiz(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, q)
}

// ListInvalidIDs handles GET /api/invalid-ids: ids a new custom slug must not take.
func (a *API) ListInvalidIDs(c *gin.Context) {
	ids, err := a.ls.ListQuizIDs(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ids)
}

// StripeWebhook handles POST /api/webhooks/stripe. Failures never expose internal detail.
func (a *API) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		writeWebhookError(c, errors.Validation(errors.WithMessagef("unreadable body"), errors.WithCause(err)))
		return
	}

	err = a.ls.HandlePaymentNotification(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		writeWebhookError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// Cleanup handles GET /api/cron/cleanup, called by an external scheduler with a bearer token.
func (a *API) Cleanup(c *gin.Context) {
	if !a.authorizedCron(c.GetHeader("Authorization")) {
		writeError(c, errors.Unauthenticated(errors.WithMessagef("unauthorized")))
		return
	}

	res, err := a.rs.Sweep(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, CleanupResponse{
		Success: true,
		Message: "Cleanup completed successfully",
		Scanned: res.Scanned,
		Deleted: res.Deleted,
		Failed:  res.Failed,
	})
}

func (a *API) authorizedCron(header string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || a.cronSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.cronSecret)) == 1
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	status := e.HTTPStatusCode()

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(status, e)
}

func writeWebhookError(c *gin.Context, err error) {
	e := errors.Convert(err)
	status := e.HTTPStatusCode()

	msg := "rejected"
	if status >= http.StatusInternalServerError {
		msg = "internal error"
		slog.ErrorContext(c.Request.Context(), "api: webhook failed", "error", err)
	}

	c.AbortWithStatusJSON(status, errors.New(e.Code, errors.WithReason(e.Reason), errors.WithMessagef("%s", msg)))
}
