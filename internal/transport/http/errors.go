package http

import (
	"errors"
	"net/http"

	"github.com/cwrk-planet/lofi-relay/internal/domain"
)

var errInvalidInput = errors.New("invalid input")

func toHTTP(err error) int {
	switch {
	case errors.Is(err, errInvalidInput),
		errors.Is(err, domain.ErrInvalidCursor):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error) string {
	switch toHTTP(err) {
	case http.StatusInternalServerError:
		return "internal error"
	default:
		return err.Error()
	}
}
