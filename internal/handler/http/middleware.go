package http

import (
	"mime"
	"net/http"

	"github.com/samiralam04/Note-app/pkg/httputil"
)

// ContentTypeJSON rejects request bodies declared as anything other than JSON.
// A missing Content-Type is accepted so plain fetch and curl clients work.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct != "" && r.Method != http.MethodGet && r.Method != http.MethodDelete {
			mediaType, _, err := mime.ParseMediaType(ct)
			if err != nil || mediaType != "application/json" {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
