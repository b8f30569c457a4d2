package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/meccanoid-ctl/internal/calibration"
	"github.com/taoyao-code/meccanoid-ctl/internal/link"
	"github.com/taoyao-code/meccanoid-ctl/internal/pose"
	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
	"github.com/taoyao-code/meccanoid-ctl/internal/sequencer"
)

// 错误码
const (
	CodeValidation   = "validation_error"
	CodeCalibration  = "calibration_error"
	CodeNotFound     = "not_found"
	CodeNotReady     = "not_ready"
	CodeDisconnected = "disconnected"
	CodeLink         = "link_error"
	CodeTimeout      = "protocol_timeout"
	CodeInternal     = "internal_error"
)

// statusFor 错误分类到 HTTP 状态码
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, mecca.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, calibration.ErrCalibration):
		return http.StatusBadRequest, CodeCalibration
	case errors.Is(err, pose.ErrUnknownPose), errors.Is(err, pose.ErrUnknownAnimation):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, link.ErrNotReady), errors.Is(err, sequencer.ErrStateUnavailable):
		return http.StatusConflict, CodeNotReady
	case errors.Is(err, link.ErrDisconnected):
		return http.StatusServiceUnavailable, CodeDisconnected
	case errors.Is(err, link.ErrProtocolTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, link.ErrLink), errors.Is(err, link.ErrConnectionFailed), errors.Is(err, link.ErrNotFound):
		return http.StatusServiceUnavailable, CodeLink
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	body := gin.H{"error": code, "message": err.Error()}
	var execErr *sequencer.ExecutionError
	if errors.As(err, &execErr) {
		body["last_completed_step"] = execErr.LastCompletedStep
	}
	c.JSON(status, body)
}
