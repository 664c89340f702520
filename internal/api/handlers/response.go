// Package handlers implements the panel's HTTP API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/dcm2610/StellarStack-sub002/internal/api/errors"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteDomainError maps a domain error onto the structured error
// vocabulary and writes it with the request id attached. Handlers call
// this for anything that crossed a store, coordinator or relay
// boundary; only request parsing failures are written directly.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	writeAPIError(w, r, apierrors.FromDomain(err))
}

// WriteBadRequest writes a 400 invalid_request response.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeAPIError(w, r, apierrors.NewInvalidRequest(message))
}

// WriteNotFound writes a 404 not_found response.
func WriteNotFound(w http.ResponseWriter, r *http.Request, message string) {
	writeAPIError(w, r, apierrors.NewNotFound(message))
}

// WriteConflict writes a 409 conflict response.
func WriteConflict(w http.ResponseWriter, r *http.Request, message string) {
	writeAPIError(w, r, apierrors.NewConflict(message))
}

// WriteUnauthorized writes a 401 unauthorized response.
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	writeAPIError(w, r, apierrors.NewUnauthorized(message))
}

// WriteForbidden writes a 403 forbidden response.
func WriteForbidden(w http.ResponseWriter, r *http.Request, message string) {
	writeAPIError(w, r, apierrors.NewForbidden(message))
}

// WriteInternalError writes a 500 internal_error response.
func WriteInternalError(w http.ResponseWriter, r *http.Request, message string) {
	writeAPIError(w, r, apierrors.NewInternalError(message))
}

func writeAPIError(w http.ResponseWriter, r *http.Request, apiErr *apierrors.APIError) {
	requestID := chimiddleware.GetReqID(r.Context())
	apierrors.WriteError(w, apiErr.WithRequestID(requestID))
}
