package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"bitbucket.org/mmdatafocus/floor_backend/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type requeueRequest struct {
	ReferenceId string `json:"reference_id"`
}

func registerEventRoutes(r *gin.Engine) {
	r.GET("/events/summary", outboxSummaryHandler())
	r.GET("/events/status", eventStatusHandler())
	r.POST("/events/requeue", requeueEventsHandler())
}

func outboxSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := models.SummarizeOutbox(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func eventStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := models.ListEventStatus(c.Request.Context(), c.Query("reference_type"), c.Query("reference_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, events)
	}
}

// requeueEventsHandler requeues the failed events of one reference, or every DEAD event without a body.
func requeueEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req requeueRequest
		if !bindOptionalJSON(c, &req) {
			return
		}
		n, err := models.RequeueEvents(c.Request.Context(), req.ReferenceId)
		if err != nil {
			respondError(c, err)
			return
		}
		config.GetLogger().WithFields(logrus.Fields{
			"field":        "requeueEventsHandler",
			"reference_id": req.ReferenceId,
			"requeued":     n,
			"requested_by": userName(c),
		}).Info("outbox events requeued")
		c.JSON(http.StatusOK, gin.H{"requeued": n})
	}
}
