package httpadapter

import (
	"net/http"

	"github.com/avolkov/grounded-search/internal/core/domain"
)

// statusClientClosedRequest is nginx's non-standard code for a request the
// caller abandoned; there is no stdlib constant for it.
const statusClientClosedRequest = 499

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrRecordNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrCancelled):
		return statusClientClosedRequest
	case domain.IsKind(err, domain.ErrGenerationUnavailable):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrRetrievalUnavailable),
		domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
