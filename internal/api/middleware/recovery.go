package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/pkg/utils"
)

// Recovery перехватывает panic в HTTP handlers.
//
// Сервер управляющей поверхности не должен падать из-за одного
// запроса: ошибка логируется вместе со stack trace, клиент получает
// 500 без деталей паники.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				utils.Logger.Error("panic in http handler",
					zap.Any("panic", err),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()))

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
