package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/floor_backend/models"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"github.com/gin-gonic/gin"
)

type startJobRequest struct {
	OperatorName string `json:"operator_name" binding:"required,max=100"`
}

type completeJobRequest struct {
	CompletedKoli *int `json:"completed_koli" binding:"omitempty,min=0"`
}

type reorderJobRequest struct {
	Order *int `json:"order" binding:"required"`
}

type reorderBatchRequest struct {
	Jobs []models.JobOrder `json:"jobs" binding:"required,dive"`
}

func registerJobRoutes(r *gin.Engine) {
	r.POST("/jobs", createJobHandler())
	r.GET("/jobs", listJobsHandler())
	r.PUT("/jobs/reorder-batch", reorderBatchHandler())
	r.GET("/jobs/:id", getJobHandler())
	r.PUT("/jobs/:id", updateJobHandler())
	r.DELETE("/jobs/:id", deleteJobHandler())
	r.POST("/jobs/:id/clone", cloneJobHandler())
	r.PUT("/jobs/:id/start", startJobHandler())
	r.PUT("/jobs/:id/complete", completeJobHandler())
	r.PUT("/jobs/:id/reorder", reorderJobHandler())
}

func createJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewJob
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		job, err := models.CreateJob(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, job)
	}
}

func listJobsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.JobFilter{
			MachineId: queryString(c, "machine_id"),
			Search:    queryString(c, "search"),
		}
		if s := queryString(c, "status"); s != nil {
			status := models.JobStatus(*s)
			filter.Status = &status
		}
		jobs, err := models.ListJobs(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, jobs)
	}
}

func getJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := models.GetJob(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func updateJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.UpdateJobInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		job, err := models.UpdateJob(c.Request.Context(), c.Param("id"), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func deleteJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := models.DeleteJob(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "job deleted", "id": job.ID})
	}
}

func cloneJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var overrides models.CloneJobInput
		if !bindOptionalJSON(c, &overrides) {
			return
		}
		job, err := models.CloneJob(c.Request.Context(), c.Param("id"), &overrides)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, job)
	}
}

func startJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		job, err := models.StartJob(c.Request.Context(), c.Param("id"), req.OperatorName)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func completeJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req completeJobRequest
		if !bindOptionalJSON(c, &req) {
			return
		}
		job, err := models.CompleteJob(c.Request.Context(), c.Param("id"), req.CompletedKoli)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func reorderJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reorderJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		job, err := models.ReorderJob(c.Request.Context(), c.Param("id"), *req.Order)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func reorderBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reorderBatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		if len(req.Jobs) == 0 {
			respondError(c, utils.Validation("jobs must not be empty"))
			return
		}
		c.JSON(http.StatusOK, models.ReorderJobs(c.Request.Context(), req.Jobs))
	}
}
