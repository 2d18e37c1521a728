package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gridbase/backend/pkg/errors"
	"github.com/gridbase/backend/pkg/logging"
)

// RespondAppError sends a standardised JSON error response using pkg/errors
func RespondAppError(c *gin.Context, err error) {
	code := errors.GetHTTPStatus(err)
	resp := errors.ToResponse(err)

	if code >= 500 {
		logging.L().Error("request failed",
			zap.Int("status", code),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}

	c.JSON(code, gin.H{
		"message": resp.Message,
		"code":    resp.Code,
		"details": resp.Details,
		"data":    nil,
	})
}

// BindJSON binds JSON and returns true if successful. If failed, it sends bad request error.
func BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondAppError(c, errors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

// ParamID reads a positive integer path parameter.
func ParamID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		RespondAppError(c, errors.NewValidationError(name, "must be a positive integer"))
		return 0, false
	}
	return id, true
}

// RespondData wraps result in the data envelope.
func RespondData(c *gin.Context, status int, result any) {
	c.JSON(status, gin.H{"data": result})
}

// HandleGet executes a read action and returns its result.
func HandleGet(c *gin.Context, action func() (any, error)) {
	result, err := action()
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, result)
}
