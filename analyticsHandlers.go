package main

import (
	"fmt"
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"bitbucket.org/mmdatafocus/floor_backend/models"
	"bitbucket.org/mmdatafocus/floor_backend/models/reports"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func registerAnalyticsRoutes(r *gin.Engine) {
	r.GET("/analytics/weekly", productionAnalyticsHandler("weekly"))
	r.GET("/analytics/monthly", productionAnalyticsHandler("monthly"))
	r.GET("/analytics/export", exportProductionHandler())
}

func productionAnalyticsHandler(period string) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := models.ProductionAnalytics(c.Request.Context(), period)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// exportProductionHandler streams the xlsx, or stores it in GCS_BUCKET when upload=true.
func exportProductionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		export, err := reports.ExportProduction(ctx, c.DefaultQuery("period", "weekly"))
		if err != nil {
			respondError(c, err)
			return
		}

		if !strings.EqualFold(strings.TrimSpace(c.Query("upload")), "true") {
			c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", export.Filename))
			c.Data(http.StatusOK, utils.XlsxContentType, export.Data)
			return
		}

		if !utils.GCSConfigured() {
			respondError(c, utils.Validation("upload requested but GCS_BUCKET is not configured"))
			return
		}
		objectName := fmt.Sprintf("exports/%s_%s", utils.GenerateUniqueFilename(), export.Filename)
		if err := utils.UploadBytesToGCS(ctx, objectName, export.Data, utils.XlsxContentType); err != nil {
			config.LogError(config.GetLogger(), "analyticsHandlers.go", "exportProductionHandler", "UploadBytesToGCS", objectName, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "export upload failed"})
			return
		}
		config.GetLogger().WithFields(logrus.Fields{
			"field":  "exportProductionHandler",
			"object": objectName,
			"rows":   export.Rows,
		}).Info("production export uploaded")
		c.JSON(http.StatusOK, gin.H{"object": objectName, "filename": export.Filename, "rows": export.Rows})
	}
}
