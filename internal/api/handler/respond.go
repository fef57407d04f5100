package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iconidentify/mediagrab/internal/domain"
)

// Error kinds let the chat layer tell what the source offers apart from
// what went wrong on our side.
const (
	kindInvalid          = "invalid_request"
	kindNotFound         = "not_found"
	kindSourceLimitation = "source_limitation"
	kindInfrastructure   = "infrastructure"
	kindInternal         = "internal"
)

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Kind: kind})
}

// writeDomainError maps err onto a status code and error kind.
func writeDomainError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeError(w, status, kind, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrUnknownProfile),
		errors.Is(err, domain.ErrPathOutsideRoot):
		return http.StatusBadRequest, kindInvalid

	case errors.Is(err, domain.ErrStreamNotFound):
		return http.StatusNotFound, kindSourceLimitation
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrSourceNotFound),
		errors.Is(err, domain.ErrMediaNotFound),
		errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound, kindNotFound

	case domain.IsSourceLimitation(err):
		return http.StatusUnprocessableEntity, kindSourceLimitation

	case errors.Is(err, domain.ErrSubprocessUnavailable),
		errors.Is(err, domain.ErrStorageFull):
		return http.StatusServiceUnavailable, kindInfrastructure
	case errors.Is(err, domain.ErrStreamFetchFailure),
		errors.Is(err, domain.ErrMergeFailure),
		errors.Is(err, domain.ErrURLExpired),
		errors.Is(err, domain.ErrRateLimited):
		return http.StatusBadGateway, kindInfrastructure
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, kindInfrastructure

	default:
		return http.StatusInternalServerError, kindInternal
	}
}
