package api

import (
	"time"

	"github.com/artpar/releaseplan/internal/core/deployment"
)

// =============================================================================
// Response Types
// =============================================================================

// PlanResponse is the response for plan creation.
type PlanResponse struct {
	PlanID      string          `json:"planId"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Plan        deployment.Plan `json:"plan"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Error codes returned in ErrorResponse.Code.
const (
	CodeValidation = "validation_error"
	CodeTooLarge   = "payload_too_large"
	CodePublish    = "publish_error"
	CodeInternal   = "internal_error"
)
