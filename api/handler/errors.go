package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kjd1374/shopping-sub000/models"
)

// statusOf maps err to its HTTP status and API-facing detail.
func statusOf(err error) (int, *models.ErrorDetail) {
	scrapeErr := models.AsScrapeError(err)
	return mapErrorToStatus(scrapeErr), scrapeErr.ToDetail()
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: err.Error(),
		},
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeChallenge,
		models.ErrCodeLLMFailure, models.ErrCodeLLMAuthFailure, models.ErrCodeAIParse:
		return http.StatusBadGateway // 502
	case models.ErrCodeExtraction, models.ErrCodePriceMissing, models.ErrCodeSiteChanged:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeBusy:
		return http.StatusConflict // 409
	case models.ErrCodeRateLimited, models.ErrCodeLLMRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeAIUnavailable, models.ErrCodeBrowserLaunch:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
