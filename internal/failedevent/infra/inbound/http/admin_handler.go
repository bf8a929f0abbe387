package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/davicafu/triplab/internal/failedevent/application"
	"github.com/davicafu/triplab/internal/failedevent/domain"
	"github.com/davicafu/triplab/pkg/utils"
)

// AdminHandler expone las operaciones de replay para operadores.
type AdminHandler struct {
	service *application.ReplayService
	log     *zap.Logger
}

func NewAdminHandler(service *application.ReplayService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{service: service, log: log}
}

// RetryAll POST /admin/failed-events/retry-all?topic=X
func (h *AdminHandler) RetryAll(c *gin.Context) {
	topic := c.Query("topic")
	if topic == "" {
		utils.SendBadRequest(c, "el parámetro topic es obligatorio")
		return
	}

	count, err := h.service.RetryAllByTopic(c.Request.Context(), topic)
	if err != nil {
		h.log.Error("Error en replay de eventos", zap.String("topic", topic), zap.Error(err))
		utils.SendInternalServerError(c, "error interno")
		return
	}
	utils.SendSuccess(c, http.StatusOK, gin.H{"topic": topic, "resent": count})
}

// Ignore POST /admin/failed-events/:id/ignore
func (h *AdminHandler) Ignore(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.SendBadRequest(c, "id inválido")
		return
	}

	if err := h.service.IgnoreEvent(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrFailedEventNotFound):
			utils.SendNotFound(c, "evento fallido no encontrado")
		case errors.Is(err, domain.ErrAlreadyProcessed):
			utils.SendConflict(c, err.Error())
		default:
			h.log.Error("Error ignorando evento fallido", zap.Int64("id", id), zap.Error(err))
			utils.SendInternalServerError(c, "error interno")
		}
		return
	}
	utils.SendSuccess(c, http.StatusOK, gin.H{"id": id, "status": domain.StatusIgnored})
}

func RegisterAdminRoutes(r *gin.Engine, handler *AdminHandler) {
	admin := r.Group("/admin/failed-events")
	{
		admin.POST("/retry-all", handler.RetryAll)
		admin.POST("/:id/ignore", handler.Ignore)
	}
}
