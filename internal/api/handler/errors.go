package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Rrens/omnichannel-session/internal/api/response"
	"github.com/Rrens/omnichannel-session/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// Request headers
const (
	HeaderSessionToken = "X-Session-Token"
	HeaderPhone        = "X-Phone"
)

var validate = validator.New()

// decode reads a JSON body into dst and validates it.
// It writes the 400 response itself and reports false on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "invalid request body")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make(map[string]string)
			for _, e := range validationErrors {
				field := e.Field()
				tag := e.Tag()
				switch tag {
				case "required":
					fields[field] = "field is required"
				case "oneof":
					fields[field] = "must be one of " + e.Param()
				case "min":
					fields[field] = "must be at least " + e.Param()
				case "max":
					fields[field] = "must be at most " + e.Param()
				default:
					fields[field] = "validation failed on " + tag
				}
			}
			response.ErrorKind(w, http.StatusBadRequest, fields, domain.Kind(domain.ErrMissingField))
			return false
		}
		response.BadRequest(w, err.Error())
		return false
	}

	return true
}

// writeError maps a service error to its status code
func writeError(w http.ResponseWriter, err error) {
	kind := domain.Kind(err)

	switch {
	case errors.Is(err, domain.ErrInvalidIdentifier),
		errors.Is(err, domain.ErrMissingIdentifier),
		errors.Is(err, domain.ErrMissingField),
		errors.Is(err, domain.ErrUnsupportedAction),
		errors.Is(err, domain.ErrWeakPassword):
		response.ErrorKind(w, http.StatusBadRequest, err.Error(), kind)
	case errors.Is(err, domain.ErrSessionNotFound):
		response.ErrorKind(w, http.StatusNotFound, err.Error(), kind)
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrInvalidQRToken),
		errors.Is(err, domain.ErrSessionInactive):
		response.ErrorKind(w, http.StatusUnauthorized, err.Error(), kind)
	case errors.Is(err, domain.ErrPhoneTaken):
		response.ErrorKind(w, http.StatusConflict, err.Error(), kind)
	default:
		log.Error().Err(err).Str("kind", kind).Msg("Request failed")
		response.ErrorKind(w, http.StatusInternalServerError, "internal error ["+kind+"]", kind)
	}
}
