package response

import (
	"errors"
	"net/http"
	"time"

	"wallet-registry/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys read by the response helpers.
const (
	CtxRequestID = "request_id"
	CtxAppName   = "app_name"
)

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	EntityName string `json:"entity_name,omitempty"`
	ErrorKey   string `json:"error_key,omitempty"`
	RequestID  string `json:"request_id"`
	Timestamp  string `json:"timestamp"`
}

// OK sends a 200 response whose body is data itself.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created sends a 201 response with a Location header pointing at the new resource.
func Created(c *gin.Context, location string, data interface{}) {
	c.Header("Location", location)
	c.JSON(http.StatusCreated, data)
}

// Empty sends a bodiless 200.
func Empty(c *gin.Context) {
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
}

// Alert sets the X-<app>-Alert and X-<app>-Params headers used by clients to
// render notifications, e.g. "walletRegistry.wallet.created" / "12".
func Alert(c *gin.Context, key, param string) {
	app := appName(c)
	c.Header("X-"+app+"-Alert", app+"."+key)
	c.Header("X-"+app+"-Params", param)
}

// Error sends an error response. It checks if err is an *apperror.AppError
// and maps it accordingly, otherwise returns 500.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		if appErr.ErrorKey != "" && appErr.EntityName != "" {
			app := appName(c)
			c.Header("X-"+app+"-Error", "error."+appErr.ErrorKey)
			c.Header("X-"+app+"-Params", appErr.EntityName)
		}
		c.JSON(appErr.HTTPStatus, ErrorResponse{
			ErrorCode:  appErr.Code,
			Message:    appErr.Message,
			EntityName: appErr.EntityName,
			ErrorKey:   appErr.ErrorKey,
			RequestID:  RequestID(c),
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		ErrorCode: "SYS_000",
		Message:   "Internal server error",
		RequestID: RequestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RequestID retrieves the request ID from context, or generates one.
func RequestID(c *gin.Context) string {
	if id, exists := c.Get(CtxRequestID); exists {
		if s, ok := id.(string); ok && s != "" {
			return s
		}
	}
	return uuid.New().String()
}

func appName(c *gin.Context) string {
	if name := c.GetString(CtxAppName); name != "" {
		return name
	}
	return "app"
}
