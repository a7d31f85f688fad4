package response

import "github.com/gin-gonic/gin"

// correlationIDKey mirrors middleware.CorrelationIDKey; middleware imports
// this package so the key cannot be shared.
const correlationIDKey = "correlation_id"

func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errors interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:        status,
		StatusCode:    code,
		Message:       message,
		Data:          data,
		Errors:        errors,
		CorrelationID: c.GetString(correlationIDKey),
	})
}
