package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"bitbucket.org/mmdatafocus/floor_backend/models"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"github.com/gin-gonic/gin"
)

func registerPaintRoutes(r *gin.Engine) {
	r.GET("/paints", listPaintsHandler())
	r.POST("/paints", createPaintHandler())
	r.POST("/paints/init", initPaintsHandler())
	r.POST("/paints/transaction", transactPaintHandler())
	r.GET("/paints/movements", listMovementsHandler())
	r.GET("/paints/low-stock", lowStockHandler())
	r.GET("/paints/analytics", paintAnalyticsHandler())
	r.GET("/paints/:id/verify", verifyPaintHandler())
	r.DELETE("/paints/:id", deletePaintHandler())
}

func listPaintsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		paints, err := models.ListPaints(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, paints)
	}
}

func createPaintHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPaint
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		paint, err := models.CreatePaint(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, paint)
	}
}

func initPaintsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		created, err := models.InitPaints(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		msg := "paints already initialized"
		if created > 0 {
			msg = "paints initialized"
		}
		c.JSON(http.StatusOK, gin.H{"message": msg, "created": created})
	}
}

func deletePaintHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		paint, err := models.DeletePaint(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "paint deleted", "id": paint.ID})
	}
}

func transactPaintHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.PaintTransactionInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		result, err := models.TransactPaint(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func listMovementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := queryInt(c, "limit")
		if err != nil {
			respondError(c, err)
			return
		}
		movements, err := models.ListPaintMovements(c.Request.Context(), queryString(c, "paint_id"), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, movements)
	}
}

func lowStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		threshold := config.LowStockThresholdKg()
		if v := queryString(c, "threshold"); v != nil {
			parsed, err := utils.ParseDecimal(*v)
			if err != nil {
				respondError(c, utils.Validation("threshold must be a number"))
				return
			}
			threshold = parsed
		}
		paints, err := models.LowStockPaints(c.Request.Context(), threshold)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"threshold_kg": threshold, "paints": paints})
	}
}

func paintAnalyticsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := models.PaintConsumptionAnalytics(c.Request.Context(), c.Query("period"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func verifyPaintHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		replay, err := models.ReplayPaintStock(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, replay)
	}
}
