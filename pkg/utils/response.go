package utils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// FlashMessage one-shot user-facing message
type FlashMessage struct {
	Category string `json:"category"` // success, error
	Message  string `json:"message"`
}

// Response standard response structure
type Response struct {
	Code      ResponseCode   `json:"code"`
	Message   string         `json:"message"`
	Data      interface{}    `json:"data,omitempty"`
	Flash     []FlashMessage `json:"flash,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// SuccessResponse returns success response
func SuccessResponse(c *gin.Context, data interface{}) {
	Success(c, data, nil)
}

// Success returns success response carrying the request's flash messages
func Success(c *gin.Context, data interface{}, flash []FlashMessage) {
	c.JSON(http.StatusOK, Response{
		Code:      CodeSuccess,
		Message:   "success",
		Data:      data,
		Flash:     flash,
		Timestamp: time.Now().Unix(),
	})
}

// ErrorResponse returns error response
func ErrorResponse(c *gin.Context, httpCode int, message string) {
	c.JSON(httpCode, Response{
		Code:      ResponseCode(httpCode),
		Message:   message,
		Timestamp: time.Now().Unix(),
	})
}

// Fail converts err into a coded response; unknown errors become internal errors.
func Fail(c *gin.Context, err error, flash []FlashMessage) {
	appErr, ok := IsAppError(err)
	if !ok {
		appErr = ErrInternalError
	}
	c.JSON(HTTPStatus(appErr.Code), Response{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Flash:     flash,
		Timestamp: time.Now().Unix(),
	})
}

// PageResponse page response structure
type PageResponse struct {
	List  interface{} `json:"list"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
}

// SuccessPageResponse returns success page response
func SuccessPageResponse(c *gin.Context, list interface{}, total int64, page, size int) {
	SuccessResponse(c, PageResponse{
		List:  list,
		Total: total,
		Page:  page,
		Size:  size,
	})
}
