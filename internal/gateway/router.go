package gateway

import (
	"eventhub/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupGatewayRoutes(router *gin.RouterGroup, controller Controller) {
	router.POST("/session", controller.NewSession) // POST /api/v1/session - Issue a gateway session id

	// Everything else runs against the workflow client of X-Session-ID
	scoped := router.Group("")
	scoped.Use(middleware.RequireSessionID(), controller.LoadSession())
	{
		authRoutes := scoped.Group("/auth")
		{
			authRoutes.POST("/login", controller.Login)
			authRoutes.POST("/register", controller.Register)
			authRoutes.POST("/logout", controller.Logout)
		}
		scoped.GET("/me", controller.Me)

		eventRoutes := scoped.Group("/events")
		{
			eventRoutes.GET("", controller.ListEvents)
			eventRoutes.GET("/:id", controller.GetEvent)
			eventRoutes.GET("/:id/availability", controller.GetAvailability)
		}

		// Organizer calls are passed through to the backend as is
		organizerEvents := scoped.Group("/events")
		organizerEvents.Use(middleware.RequireRoles("ORGANIZER", "ADMIN"))
		{
			organizerEvents.POST("", controller.CreateEvent)
			organizerEvents.POST("/:id/publish", controller.PublishEvent)
		}

		attempts := scoped.Group("/attempts")
		{
			attempts.POST("", controller.BeginAttempt)            // POST /api/v1/attempts - Start a booking attempt
			attempts.GET("", controller.ListAttempts)             // GET /api/v1/attempts - Journaled attempts of the user
			attempts.GET("/:id", controller.GetAttempt)           // GET /api/v1/attempts/:id - Live snapshot
			attempts.POST("/:id/reserve", controller.Reserve)     // POST /api/v1/attempts/:id/reserve
			attempts.POST("/:id/intent", controller.CreateIntent) // POST /api/v1/attempts/:id/intent
			attempts.POST("/:id/capture", controller.Capture)     // POST /api/v1/attempts/:id/capture
			attempts.POST("/:id/abandon", controller.Abandon)     // POST /api/v1/attempts/:id/abandon
		}
		scoped.POST("/bookings", controller.Book) // POST /api/v1/bookings - Reserve, intent and capture in one call

		reservationRoutes := scoped.Group("/reservations")
		{
			reservationRoutes.GET("", controller.ListReservations)
			reservationRoutes.POST("/:id/confirm", controller.ConfirmReservation)
			reservationRoutes.POST("/:id/cancel", controller.CancelReservation)
		}

		paymentRoutes := scoped.Group("/payments")
		{
			paymentRoutes.GET("", controller.PaymentHistory)
			paymentRoutes.GET("/intents", controller.ListIntents)
		}
	}
}
