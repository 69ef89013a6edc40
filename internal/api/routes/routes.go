package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/callgate/internal/api/handlers"
	"github.com/yoockh/callgate/internal/api/middleware"
	"github.com/yoockh/callgate/internal/telephony"
)

type Deps struct {
	Twilio    *handlers.TwilioHandler
	Calls     *handlers.CallsHandler
	Monitor   *handlers.MonitorHandler // optional
	Customers *handlers.CustomerHandler
	Greeting  *handlers.GreetingHandler // optional

	JWT     middleware.JWTConfig
	Metrics http.Handler // optional
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	// Telephony: signed webhook + media stream
	r.POST("/twilio/answer", d.Twilio.Answer)
	r.GET(telephony.StreamPath, d.Twilio.Stream)

	// Operator API (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.JWT))

	auth.GET("/calls", d.Calls.List)
	auth.GET("/calls/live", d.Calls.Live)
	auth.GET("/calls/:call_id", d.Calls.Get)
	auth.GET("/calls/:call_id/utterances", d.Calls.Utterances)
	auth.GET("/calls/:call_id/transcript", d.Calls.Transcript)
	auth.POST("/calls/:call_id/hangup", d.Calls.Hangup)

	auth.GET("/customers", d.Customers.GetByPhone)

	if d.Monitor != nil {
		auth.GET("/ws/calls/:call_id", d.Monitor.CallWS)
	}

	admin := auth.Group("/")
	admin.Use(middleware.RequireAdmin())
	admin.POST("/customers", d.Customers.Register)
	if d.Greeting != nil {
		admin.POST("/greeting", d.Greeting.Upload)
	}
}
