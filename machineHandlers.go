package main

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/floor_backend/models"
	"github.com/gin-gonic/gin"
)

type maintenanceRequest struct {
	Maintenance *bool  `json:"maintenance" binding:"required"`
	Reason      string `json:"reason" binding:"max=255"`
}

func registerMachineRoutes(r *gin.Engine) {
	r.GET("/machines", listMachinesHandler())
	r.POST("/machines/init", initMachinesHandler())
	r.GET("/machines/:id", getMachineHandler())
	r.PUT("/machines/:id/maintenance", setMaintenanceHandler())
	r.GET("/maintenance-logs", listMaintenanceLogsHandler())
}

func listMachinesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		machines, err := models.ListMachines(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, machines)
	}
}

func initMachinesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		created, err := models.InitMachines(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		msg := "machines already initialized"
		if created > 0 {
			msg = "machines initialized"
		}
		c.JSON(http.StatusOK, gin.H{"message": msg, "created": created})
	}
}

func getMachineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		machine, err := models.GetMachine(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, machine)
	}
}

func setMaintenanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req maintenanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		machine, err := models.SetMaintenance(c.Request.Context(), c.Param("id"), *req.Maintenance, strings.TrimSpace(req.Reason))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, machine)
	}
}

func listMaintenanceLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := queryInt(c, "limit")
		if err != nil {
			respondError(c, err)
			return
		}
		logs, err := models.ListMaintenanceLogs(c.Request.Context(), strings.TrimSpace(c.Query("machine_id")), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, logs)
	}
}
