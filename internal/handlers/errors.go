package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"restaurant_ordering_backend/internal/services"
	"restaurant_ordering_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// respondServiceError maps a service error onto the API error envelope. Unclassified errors
// are logged and answered with a generic 500.
func respondServiceError(c *gin.Context, op string, err error) {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		utils.LogError(err, op+": unexpected error", map[string]interface{}{"request_id": c.GetString("requestID")})
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Internal server error", ""))
		return
	}

	var status int
	var code string
	switch svcErr.Kind {
	case services.KindValidation:
		status, code = http.StatusBadRequest, utils.ErrCodeValidationFailed
	case services.KindNotFound:
		status, code = http.StatusNotFound, utils.ErrCodeNotFound
	case services.KindBusinessRule:
		status, code = http.StatusUnprocessableEntity, utils.ErrCodeBusinessRule
	case services.KindConflict:
		status, code = http.StatusConflict, utils.ErrCodeConflict
	case services.KindUnauthorized:
		status, code = http.StatusUnauthorized, utils.ErrCodeUnauthorized
	case services.KindProvider:
		if svcErr.Retryable {
			status, code = http.StatusServiceUnavailable, utils.ErrCodeProviderUnavailable
		} else {
			status, code = http.StatusBadGateway, utils.ErrCodeProviderError
		}
	default:
		utils.LogError(err, op+": internal error", map[string]interface{}{"request_id": c.GetString("requestID")})
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Internal server error", ""))
		return
	}

	fields := map[string]interface{}{"request_id": c.GetString("requestID"), "kind": svcErr.Kind.String()}
	if status >= http.StatusInternalServerError {
		utils.LogError(err, op+": request failed", fields)
	} else {
		fields["error"] = err.Error()
		utils.LogDebug(op+": request rejected", fields)
	}

	// Provider internals stay in the logs.
	details := svcErr.Detail
	if svcErr.Kind == services.KindProvider {
		details = ""
	}
	utils.RespondWithError(c, utils.NewAPIError(status, code, svcErr.Message, details))
}

func respondBindError(c *gin.Context, err error) {
	utils.RespondValidationFailed(c, err.Error())
}

// parseIDParam reads a positive integer path parameter, answering 400 when it is malformed.
func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		utils.RespondValidationFailed(c, "invalid "+name+" parameter")
		return 0, false
	}
	return id, true
}

func parsePagination(c *gin.Context) (page, pageSize int, ok bool) {
	page, pageSize = 1, 10
	if s := c.Query("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			utils.RespondValidationFailed(c, "page must be a positive integer")
			return 0, 0, false
		}
		page = n
	}
	if s := c.Query("page_size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			utils.RespondValidationFailed(c, "page_size must be a positive integer")
			return 0, 0, false
		}
		pageSize = n
	}
	return page, pageSize, true
}
