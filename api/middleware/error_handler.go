// api/middleware/error_handler.go
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/nebula-dataapi/internal/auth"
	"github.com/Annany2002/nebula-dataapi/internal/engine"
)

// ErrorHandler creates a Gin middleware for centralized error handling.
// With debug on, unexpected errors are returned verbatim instead of a generic message.
func ErrorHandler(debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		// Only the last attached error decides the response.
		err := c.Errors.Last().Err

		var validation *engine.ValidationError
		if errors.As(err, &validation) {
			customLog.Printf("ErrorHandler: %v", err)
			respond(c, http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": validation.Errors})
			return
		}

		statusCode := statusFor(err)
		userMessage := err.Error()
		switch {
		case statusCode == http.StatusInternalServerError:
			customLog.Errorf("ErrorHandler: Unhandled error (%T) on %s %s: %v", err, c.Request.Method, c.Request.URL.Path, err)
			if !debug {
				userMessage = "internal server error"
			}
		case errors.Is(err, auth.ErrTokenExpired):
			userMessage = "Authentication token has expired."
		case statusCode == http.StatusUnauthorized && !errors.Is(err, auth.ErrAPIKeyExpired) && !errors.Is(err, auth.ErrAPIKeyInvalid):
			userMessage = "Invalid or malformed authentication token."
		default:
			customLog.Printf("ErrorHandler: %d %v", statusCode, err)
		}

		respond(c, statusCode, gin.H{"error": userMessage})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrModelNotFound),
		errors.Is(err, engine.ErrTableMissing),
		errors.Is(err, engine.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, engine.ErrMalformedInput),
		errors.Is(err, engine.ErrSoftDeleteUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrTokenMalformed),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenClaimsInvalid),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrUnexpectedSigningMethod),
		errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrAPIKeyInvalid),
		errors.Is(err, auth.ErrAPIKeyExpired):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func respond(c *gin.Context, status int, body gin.H) {
	if c.Writer.Written() {
		customLog.Warnln("ErrorHandler: Response already written before handling error.")
		return
	}
	c.AbortWithStatusJSON(status, body)
}
