package utils

import "github.com/gin-gonic/gin"

// JSONResponse is the uniform envelope returned by every endpoint. Data is
// always present on success, even when null.
type JSONResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Success writes a 200 envelope with the given message and payload.
func Success(ctx *gin.Context, message string, data interface{}) {
	ctx.JSON(200, JSONResponse{Success: true, Message: message, Data: data})
}

// Error writes a failure envelope with the given status. Errors carry no data
// field, matching the legacy wire format.
func Error(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, errorResponse{Success: false, Message: message})
}
