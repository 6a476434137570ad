package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docengine/internal/core/apperror"
	"docengine/internal/core/engine"
	"docengine/internal/core/tenant"
	"docengine/internal/infrastructure/http/v1/dto"
	"docengine/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		renderError(c)
	}
}

func renderError(c *gin.Context) {
	if len(c.Errors) == 0 || c.Writer.Written() {
		return
	}
	err := c.Errors.Last().Err
	ctx := c.Request.Context()

	appErr, ok := toAppError(err)
	if !ok {
		logger.Error(ctx, "unhandled error", "error", err)
		c.JSON(http.StatusInternalServerError, dto.Fail(
			apperror.CodeInternal,
			"Internal server error",
			map[string]any{"request_id": c.GetString("request_id")},
		))
		return
	}

	if appErr.Err != nil {
		level := logger.Warn
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			level = logger.Error
		}
		level(ctx, "request error",
			"code", appErr.Code,
			"cause", appErr.Err,
		)
	}
	c.JSON(appErr.HTTPStatus, dto.Fail(appErr.Code, appErr.Message, appErr.Details))
}

func toAppError(err error) (*apperror.AppError, bool) {
	if errors.Is(err, tenant.ErrTenantNotFound) && !apperror.IsAppError(err) {
		return apperror.NewTenantNotFound("").WithCause(err), true
	}
	var ee *engine.Error
	if errors.As(err, &ee) {
		return apperror.AsAppError(engine.ToAppError(err))
	}
	return apperror.AsAppError(err)
}
