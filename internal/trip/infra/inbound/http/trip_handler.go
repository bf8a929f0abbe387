package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/davicafu/triplab/internal/trip/application"
	"github.com/davicafu/triplab/internal/trip/domain"
	"github.com/davicafu/triplab/pkg/utils"
)

// TripHandler expone los comandos del ciclo de vida del viaje. Las apps de
// conductor reintentan con el mismo tripId, así que "ya está en ese estado"
// responde 200 y no 409.
type TripHandler struct {
	service *application.TripService
	log     *zap.Logger
}

func NewTripHandler(service *application.TripService, log *zap.Logger) *TripHandler {
	return &TripHandler{service: service, log: log}
}

type completeTripRequest struct {
	DistanceMeters  int `json:"distanceMeters" binding:"required,gt=0"`
	DurationSeconds int `json:"durationSeconds" binding:"required,gt=0"`
}

type cancelTripRequest struct {
	CanceledBy string `json:"canceledBy" binding:"required,oneof=USER DRIVER"`
}

// Arrive PUT /api/trips/:tripId/arrive
func (h *TripHandler) Arrive(c *gin.Context) {
	tripID := c.Param("tripId")
	if err := h.service.DriverArrived(c.Request.Context(), tripID); err != nil {
		h.respondCommandError(c, tripID, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, gin.H{"trip_id": tripID, "status": domain.StatusArrived})
}

// Start PUT /api/trips/:tripId/start
func (h *TripHandler) Start(c *gin.Context) {
	tripID := c.Param("tripId")
	if err := h.service.StartTrip(c.Request.Context(), tripID); err != nil {
		h.respondCommandError(c, tripID, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, gin.H{"trip_id": tripID, "status": domain.StatusInProgress})
}

// Complete PUT /api/trips/:tripId/complete
func (h *TripHandler) Complete(c *gin.Context) {
	tripID := c.Param("tripId")

	var req completeTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, "distanceMeters y durationSeconds deben ser positivos")
		return
	}

	if err := h.service.CompleteTrip(c.Request.Context(), tripID, req.DistanceMeters, req.DurationSeconds); err != nil {
		h.respondCommandError(c, tripID, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, gin.H{"trip_id": tripID, "status": domain.StatusPaymentPending})
}

// Cancel PUT /api/trips/:tripId/cancel
func (h *TripHandler) Cancel(c *gin.Context) {
	tripID := c.Param("tripId")

	var req cancelTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, "canceledBy debe ser USER o DRIVER")
		return
	}

	if err := h.service.CancelTrip(c.Request.Context(), tripID, req.CanceledBy); err != nil {
		h.respondCommandError(c, tripID, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, gin.H{"trip_id": tripID, "status": domain.StatusCanceled})
}

// GetTrip GET /api/trips/:tripId
func (h *TripHandler) GetTrip(c *gin.Context) {
	tripID := c.Param("tripId")

	trip, err := h.service.GetTripDetails(c.Request.Context(), tripID)
	if err != nil {
		if errors.Is(err, domain.ErrTripNotFound) {
			utils.SendNotFound(c, "trip no encontrado")
			return
		}
		h.log.Error("Error consultando trip", zap.String("trip_id", tripID), zap.Error(err))
		utils.SendInternalServerError(c, "error interno")
		return
	}
	utils.SendSuccess(c, http.StatusOK, trip)
}

// DriverInProgress GET /internal/drivers/:driverId/in-progress
// Lo consulta el matching service antes de ofrecer un nuevo viaje.
func (h *TripHandler) DriverInProgress(c *gin.Context) {
	driverID, err := strconv.ParseInt(c.Param("driverId"), 10, 64)
	if err != nil {
		utils.SendBadRequest(c, "driverId inválido")
		return
	}

	onTrip, err := h.service.IsDriverOnTrip(c.Request.Context(), driverID)
	if err != nil {
		h.log.Error("Error consultando viaje activo del conductor", zap.Int64("driver_id", driverID), zap.Error(err))
		utils.SendInternalServerError(c, "error interno")
		return
	}
	utils.SendSuccess(c, http.StatusOK, gin.H{"driver_id": driverID, "in_progress": onTrip})
}

func (h *TripHandler) respondCommandError(c *gin.Context, tripID string, err error) {
	switch {
	case errors.Is(err, domain.ErrTripNotFound):
		utils.SendNotFound(c, "trip no encontrado")
	case errors.Is(err, domain.ErrTripStatusConflict):
		utils.SendConflict(c, err.Error())
	default:
		h.log.Error("Error ejecutando comando de trip", zap.String("trip_id", tripID), zap.Error(err))
		utils.SendInternalServerError(c, "error interno")
	}
}
