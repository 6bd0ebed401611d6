package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"craftcv/internal/designer"
	"craftcv/internal/store"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func Unauthorized(c *gin.Context)           { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)  { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

// designerError 把设计器错误映射为 HTTP 响应：
// 校验错误 422（保存进行中 409），存储错误 502（记录不存在 404）。
func designerError(c *gin.Context, err error) {
	var verr *designer.ValidationError
	var perr *designer.PersistenceError
	switch {
	case errors.As(err, &verr):
		status := http.StatusUnprocessableEntity
		if verr == designer.ErrSaveInProgress {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error(), "code": verr.Code})
	case errors.Is(err, store.ErrNotFound):
		NotFound(c, "template not found")
	case errors.As(err, &perr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "template store unavailable", "code": "persistence_failed", "op": perr.Op})
	default:
		Internal(c, "internal error")
	}
}
