package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/makkenzo/device-license-api/internal/handler/dto"
	"github.com/makkenzo/device-license-api/internal/ierr"
	"github.com/makkenzo/device-license-api/internal/service"
	"go.uber.org/zap"
)

type LicenseHandler struct {
	service *service.LicenseService
	logger  *zap.Logger
}

func NewLicenseHandler(service *service.LicenseService, logger *zap.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.Named("LicenseHandler"),
	}
}

func (h *LicenseHandler) Create(c *gin.Context) {
	h.logger.Debug("Received request to create license")
	var req dto.CreateLicenseRequest

	// Every field is optional, so an empty body is a valid request.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("Failed to bind or validate request body", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	createdLicense, err := h.service.CreateLicense(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateLicenseResponse{
		Message: "License created",
		License: dto.NewLicenseResponse(createdLicense, h.service.Now()),
	})
}

func (h *LicenseHandler) Activate(c *gin.Context) {
	var req dto.BindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind activate request body", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	outcome, err := h.service.Activate(c.Request.Context(), req.Key, req.ClientID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewBindingResponse(outcome))
}

func (h *LicenseHandler) Validate(c *gin.Context) {
	var req dto.BindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind validate request body", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	outcome, err := h.service.Validate(c.Request.Context(), req.Key, req.ClientID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewBindingResponse(outcome))
}

func (h *LicenseHandler) Deactivate(c *gin.Context) {
	var req dto.DeactivateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind deactivate request body", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	if err := h.service.DeactivateLicense(c.Request.Context(), req.Key); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.MessageResponse{Message: "License deactivated"})
}

func (h *LicenseHandler) List(c *gin.Context) {
	licenses, err := h.service.ListLicenses(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	now := h.service.Now()
	responses := make([]*dto.LicenseResponse, len(licenses))
	for i, lic := range licenses {
		responses[i] = dto.NewLicenseResponse(lic, now)
	}

	c.JSON(http.StatusOK, dto.ListLicensesResponse{Licenses: responses})
}

func (h *LicenseHandler) Delete(c *gin.Context) {
	key := c.Param("key")

	if err := h.service.DeleteLicense(c.Request.Context(), key); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.MessageResponse{Message: "License deleted"})
}

// bindError keeps validator errors intact for field level details and marks
// everything else (malformed JSON, wrong types) as a validation failure.
func bindError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return err
	}
	return fmt.Errorf("%w: %v", ierr.ErrValidation, err)
}
