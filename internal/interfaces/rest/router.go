package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter wires the handlers into a gin engine. Middleware is added by the caller.
func NewRouter(fields *FieldHandler, formulas *FormulaHandler, db Pinger, middleware ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(middleware...)

	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		if db != nil {
			if err := db.Ping(c.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body = gin.H{"status": "unavailable", "error": err.Error()}
			}
		}
		c.JSON(status, body)
	})

	api := router.Group("/api")
	{
		tables := api.Group("/tables")
		{
			tables.POST("", fields.CreateTable)
			tables.POST("/:id/fields", fields.CreateField)
			tables.POST("/:id/formula/type", formulas.TypeFormula)
		}

		fieldRoutes := api.Group("/fields")
		{
			fieldRoutes.PATCH("/:id", fields.UpdateField)
			fieldRoutes.DELETE("/:id", fields.DeleteField)
			fieldRoutes.POST("/:id/retype", fields.RetypeDependants)
		}

		formula := api.Group("/formula")
		{
			formula.GET("/functions", formulas.GetFunctions)
			formula.DELETE("/cache", formulas.ClearCache)
		}
	}
	return router
}
