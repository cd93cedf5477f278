// internal/handlers/license.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gestionpro/license-server/internal/services"
	"github.com/gestionpro/license-server/internal/utils"
)

type LicenseHandler struct {
	licenseService *services.LicenseService
}

func NewLicenseHandler(licenseService *services.LicenseService) *LicenseHandler {
	return &LicenseHandler{
		licenseService: licenseService,
	}
}

type activateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type validateResponse struct {
	Valid                bool   `json:"valid"`
	Message              string `json:"message,omitempty"`
	RemainingValidations *int   `json:"remainingValidations,omitempty"`
}

// POST /activate
func (h *LicenseHandler) Activate(c *gin.Context) {
	var req services.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, activateResponse{
			Success: false,
			Message: "Incomplete activation data.",
		})
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		c.JSON(http.StatusBadRequest, activateResponse{
			Success: false,
			Message: "Incomplete activation data.",
		})
		return
	}

	req.ClientIP = c.ClientIP()

	result, err := h.licenseService.Activate(&req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, activateResponse{
			Success: false,
			Message: "Internal server error.",
		})
		return
	}

	c.JSON(http.StatusOK, activateResponse{
		Success: result.Success,
		Message: result.Message,
	})
}

// POST /validate
func (h *LicenseHandler) Validate(c *gin.Context) {
	var req services.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, validateResponse{
			Valid:   false,
			Message: "Incomplete validation data.",
		})
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		c.JSON(http.StatusBadRequest, validateResponse{
			Valid:   false,
			Message: "Incomplete validation data.",
		})
		return
	}

	req.ClientIP = c.ClientIP()

	result, err := h.licenseService.Validate(&req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, validateResponse{
			Valid:   false,
			Message: "Internal server error.",
		})
		return
	}

	c.JSON(http.StatusOK, validateResponse{
		Valid:                result.Valid,
		Message:              result.Message,
		RemainingValidations: result.RemainingValidations,
	})
}
