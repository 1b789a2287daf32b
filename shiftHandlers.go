package main

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/floor_backend/models"
	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"bitbucket.org/mmdatafocus/floor_backend/workflow"
	"github.com/gin-gonic/gin"
)

const reportSubmittedMessage = "Rapor gönderildi, onay bekleniyor"

type approveReportRequest struct {
	ApprovedBy string `json:"approved_by" binding:"max=100"`
}

type approveAllRequest struct {
	ShiftId    *string `json:"shift_id"`
	ApprovedBy string  `json:"approved_by" binding:"max=100"`
}

type endWithReportRequest struct {
	Reports []workflow.MachineReportEntry `json:"reports" binding:"required,dive"`
}

func registerShiftRoutes(r *gin.Engine) {
	r.POST("/shifts/start", startShiftHandler())
	r.POST("/shifts/end", endShiftHandler())
	r.GET("/shifts/current", currentShiftHandler())
	r.GET("/shifts/status", shiftStatusHandler())
	r.GET("/shifts", listShiftsHandler())
	r.POST("/shifts/operator-report", submitReportHandler())
	r.GET("/shifts/pending-reports", pendingReportsHandler())
	r.GET("/shifts/reports", listReportsHandler())
	r.POST("/shifts/approve-report/:id", approveReportHandler())
	r.POST("/shifts/approve-all", approveAllHandler())
	r.POST("/shifts/end-with-report", endWithReportHandler())

	r.POST("/defects", createDefectHandler())
	r.GET("/defects", listDefectsHandler())
}

func startShiftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		shift, err := models.StartShift(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, shift)
	}
}

func endShiftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		shift, err := models.EndShift(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Shift ended", "shift": shift})
	}
}

// currentShiftHandler answers null when no shift is active.
func currentShiftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		shift, err := models.CurrentShift(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, shift)
	}
}

func shiftStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		shift, err := models.CurrentShift(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		status := "none"
		if shift != nil {
			status = string(models.ShiftStatusActive)
		}
		c.JSON(http.StatusOK, gin.H{"status": status, "shift": shift})
	}
}

func listShiftsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := queryInt(c, "limit")
		if err != nil {
			respondError(c, err)
			return
		}
		shifts, err := models.ListShifts(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, shifts)
	}
}

func submitReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOperatorReport
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		report, err := models.SubmitOperatorReport(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"report_id": report.ID, "message": reportSubmittedMessage})
	}
}

func pendingReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reports, err := models.ListPendingReports(c.Request.Context(), queryString(c, "shift_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, reports)
	}
}

func listReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.ReportFilter{ShiftId: queryString(c, "shift_id")}
		if s := queryString(c, "status"); s != nil {
			status := models.ReportStatus(*s)
			if status != models.ReportStatusPending && status != models.ReportStatusApproved {
				respondError(c, utils.Validation("invalid report status %q", *s))
				return
			}
			filter.Status = &status
		}
		reports, err := models.ListOperatorReports(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, reports)
	}
}

func approveReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req approveReportRequest
		if !bindOptionalJSON(c, &req) {
			return
		}
		approvedBy := strings.TrimSpace(req.ApprovedBy)
		if approvedBy == "" {
			approvedBy = userName(c)
		}
		result, err := workflow.ApproveReport(c.Request.Context(), c.Param("id"), approvedBy)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Rapor onaylandı", "result": result})
	}
}

func approveAllHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req approveAllRequest
		if !bindOptionalJSON(c, &req) {
			return
		}
		shiftId := req.ShiftId
		if shiftId == nil {
			shiftId = queryString(c, "shift_id")
		}
		approvedBy := strings.TrimSpace(req.ApprovedBy)
		if approvedBy == "" {
			approvedBy = userName(c)
		}
		result, err := workflow.ApproveAll(c.Request.Context(), shiftId, approvedBy)
		if err != nil {
			respondBatchError(c, result, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func endWithReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req endWithReportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		result, err := workflow.EndShiftWithReport(c.Request.Context(), req.Reports)
		if err != nil {
			respondBatchError(c, result, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func createDefectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewDefectLog
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		entry, err := models.CreateDefectLog(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

func listDefectsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defects, err := models.ListDefectLogs(c.Request.Context(), models.DefectFilter{
			ShiftId:   queryString(c, "shift_id"),
			MachineId: queryString(c, "machine_id"),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, defects)
	}
}
