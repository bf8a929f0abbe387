package http

import "github.com/gin-gonic/gin"

func RegisterTripRoutes(r *gin.Engine, handler *TripHandler) {
	trips := r.Group("/api/trips")
	{
		trips.PUT("/:tripId/arrive", handler.Arrive)
		trips.PUT("/:tripId/start", handler.Start)
		trips.PUT("/:tripId/complete", handler.Complete)
		trips.PUT("/:tripId/cancel", handler.Cancel)
		trips.GET("/:tripId", handler.GetTrip)
	}

	internal := r.Group("/internal")
	{
		internal.GET("/drivers/:driverId/in-progress", handler.DriverInProgress)
	}
}
