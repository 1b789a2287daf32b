package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"bitbucket.org/mmdatafocus/floor_backend/workflow"
	"github.com/gin-gonic/gin"
)

func statusForCode(code string) int {
	switch code {
	case utils.CodeNotFound:
		return http.StatusNotFound
	case utils.CodeConflict:
		return http.StatusConflict
	case utils.CodeValidation, utils.CodeInsufficientStock:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the structured error body: {"error", "code", "details"?}.
// Errors without a business code are logged and hidden behind a 500.
func respondError(c *gin.Context, err error) {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		body := gin.H{"error": appErr.Message, "code": appErr.Code}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		c.JSON(statusForCode(appErr.Code), body)
		return
	}
	if code := utils.ErrorCode(err); code != "" {
		c.JSON(statusForCode(code), gin.H{"error": err.Error(), "code": code})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

// respondBatchError keeps the partial result of a batch whose items were applied before err.
func respondBatchError(c *gin.Context, result *workflow.BatchResult, err error) {
	if result == nil {
		respondError(c, err)
		return
	}
	code := utils.ErrorCode(err)
	if code == "" {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "result": result})
		return
	}
	c.JSON(statusForCode(code), gin.H{"error": err.Error(), "code": code, "result": result})
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid request",
		"code":    utils.CodeValidation,
		"details": utils.ProcessValidationErrors(err),
	})
}

// bindOptionalJSON binds the body when one was sent. An empty body leaves obj untouched.
func bindOptionalJSON(c *gin.Context, obj any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		respondBindError(c, err)
		return false
	}
	return true
}

// queryString returns nil for an absent or blank query parameter.
func queryString(c *gin.Context, key string) *string {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil
	}
	return &v
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, utils.Validation("%s must be an integer", key)
	}
	return n, nil
}

func userName(c *gin.Context) string {
	name, _ := utils.GetUserNameFromContext(c.Request.Context())
	return name
}
