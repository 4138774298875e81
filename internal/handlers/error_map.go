package handlers

import (
	"net/http"

	"github.com/Hari-prasath-6380/KCP-organics/internal/apperror"
	"github.com/Hari-prasath-6380/KCP-organics/internal/logger"
)

// writeServiceError переводит ошибку сервиса в HTTP ответ.
// Неизвестные ошибки логируются, клиент получает только internalMessage.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error, internalMessage string) {
	status := http.StatusInternalServerError
	switch {
	case apperror.Is(err, apperror.KindNotFound):
		status = http.StatusNotFound
	case apperror.Is(err, apperror.KindValidation), apperror.Is(err, apperror.KindBusinessRule):
		status = http.StatusBadRequest
	case apperror.Is(err, apperror.KindConflict):
		status = http.StatusConflict
	default:
		if log != nil {
			log.WithError(err).Error(internalMessage)
		}
		writeErrorResponse(w, status, internalMessage)
		return
	}

	writeJSONResponse(w, status, Response{
		Success: false,
		Message: err.Error(),
		Reason:  apperror.ReasonOf(err),
	})
}
