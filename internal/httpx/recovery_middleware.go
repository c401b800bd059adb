package httpx

import (
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

func RecoveryMiddleware(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(logrus.Fields{
						"request_id": RequestIDFrom(r),
						"panic":      err,
						"stack":      string(debug.Stack()),
					}).Error("panic recovered")

					if rw, ok := w.(*responseWriter); ok && rw.wroteHeader() {
						return
					}
					InternalError(w, r)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
