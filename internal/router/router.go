package router

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/tripboard/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret string) *gin.Engine {
	r := gin.Default()

	// 配置会话中间件
	store := cookie.NewStore([]byte(sessionSecret))
	r.Use(sessions.Sessions("tripboard_session", store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/register", api.Register)
		apiGroup.POST("/login", api.Login)
		apiGroup.POST("/logout", api.Logout)

		// 需要认证的路由
		auth := apiGroup.Group("")
		auth.Use(handler.AuthRequired())
		{
			auth.POST("/trips", api.CreateTrip)
			auth.GET("/trips", api.GetTrips)
			auth.GET("/trips/:id", api.GetTrip)
			auth.PUT("/trips/:id", api.UpdateTrip)
			auth.DELETE("/trips/:id", api.DeleteTrip)
			auth.POST("/trips/:id/join", api.JoinTrip)
			auth.GET("/trips/:id/members", api.GetMembers)
			auth.PUT("/trips/:id/members/:memberID", api.UpdateMemberRole)

			auth.POST("/trips/:id/days", api.AddDay)
			auth.GET("/trips/:id/days", api.GetDays)
			auth.DELETE("/days/:id", api.DeleteDay)
			auth.POST("/days/:id/blocks", api.AddBlock)
			auth.PUT("/blocks/:id", api.UpdateBlock)
			auth.DELETE("/blocks/:id", api.DeleteBlock)
			auth.POST("/blocks/:id/reset", api.ResetBlock)

			auth.POST("/trips/:id/activities", api.CreateActivity)
			auth.GET("/trips/:id/activities", api.GetActivities)
			auth.GET("/activities/:id", api.GetActivity)
			auth.PUT("/activities/:id", api.UpdateActivity)
			auth.DELETE("/activities/:id", api.DeleteActivity)

			auth.POST("/blocks/:id/proposals", api.CreateProposal)
			auth.GET("/blocks/:id/proposals", api.GetProposals)
			auth.DELETE("/proposals/:id", api.WithdrawProposal)

			auth.POST("/blocks/:id/votes", api.CastVote)
			auth.GET("/blocks/:id/tally", api.GetTally)

			auth.POST("/blocks/:id/commit", api.CommitBlock)
			auth.DELETE("/blocks/:id/commit", api.UncommitBlock)
			auth.GET("/blocks/:id/commit", api.GetCommit)
			auth.GET("/trips/:id/commits", api.ListCommits)
			auth.POST("/trips/:id/commits/swap", api.SwapCommits)
			auth.GET("/trips/:id/itinerary", api.GetItinerary)
		}
	}

	return r
}
