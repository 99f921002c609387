package request

import (
	"fmt"
	"net/http"

	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/httputil"
)

// BodyLimit caps request bodies at maxBytes. A declared Content-Length over
// the cap is refused with 413 before the handler runs; streamed bodies are
// cut off by http.MaxBytesReader, which the handler sees as a read error.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, httputil.ErrorResponse{
					Code:    string(dErrors.CodeValidation),
					Message: fmt.Sprintf("request body exceeds %d bytes", maxBytes),
				})
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
