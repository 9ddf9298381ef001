package dto

import (
	"time"

	"github.com/makkenzo/device-license-api/internal/domain/license"
)

type CreateLicenseRequest struct {
	DurationDays *int    `json:"durationDays" binding:"omitempty,gt=0"`
	OwnerName    *string `json:"ownerName" binding:"omitempty,max=200"`
}

type LicenseResponse struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Active    bool      `json:"active"`
	OwnerName string    `json:"ownerName"`
	Expired   bool      `json:"expired"`
}

func NewLicenseResponse(lic *license.License, now time.Time) *LicenseResponse {
	return &LicenseResponse{
		Key:       lic.Key,
		CreatedAt: lic.CreatedAt,
		ExpiresAt: lic.ExpiresAt,
		Active:    lic.Active,
		OwnerName: lic.OwnerName,
		Expired:   lic.IsExpired(now),
	}
}

type CreateLicenseResponse struct {
	Message string           `json:"message"`
	License *LicenseResponse `json:"license"`
}

type ListLicensesResponse struct {
	Licenses []*LicenseResponse `json:"licenses"`
}

// BindingRequest is the body of both activate and validate calls.
type BindingRequest struct {
	Key      string `json:"key" binding:"required,max=128"`
	ClientID string `json:"clientId" binding:"required,max=256"`
}

type BindingResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
	Outcome string `json:"outcome"`
}

func NewBindingResponse(outcome license.Outcome) *BindingResponse {
	return &BindingResponse{
		Valid:   outcome.Valid(),
		Message: outcome.Message(),
		Outcome: string(outcome),
	}
}

type DeactivateLicenseRequest struct {
	Key string `json:"key" binding:"required"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
