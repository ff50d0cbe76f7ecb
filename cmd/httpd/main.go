package main

import (
	"log"

	"github.com/flowgate/httpd/app"
	"github.com/flowgate/httpd/config"
	"github.com/flowgate/httpd/core/http"
	"github.com/flowgate/httpd/core/middleware"
	"github.com/flowgate/httpd/core/sendfile"
)

func main() {
	cfg := config.New()

	supervisor := app.New(cfg)
	supervisor.SetFileServer(sendfile.New("./public"))
	supervisor.SetMetricsAddr(":9090")

	r := supervisor.Router()
	r.Use(middleware.RequestID(), middleware.Recovery(), middleware.Logger())

	r.GET("/", func(ctx *http.Context) {
		ctx.String(200, "Welcome to httpd!")
	})

	r.GET("/api/status", func(ctx *http.Context) {
		ctx.JSON(200, map[string]any{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.GET("/api/users/:id", func(ctx *http.Context) {
		ctx.JSON(200, map[string]string{
			"user_id": ctx.Param("id"),
		})
	})

	r.GET("/api/search", func(ctx *http.Context) {
		ctx.JSON(200, map[string]string{
			"query": ctx.Query("q"),
			"page":  ctx.Query("page"),
		})
	})

	r.POST("/api/users", func(ctx *http.Context) {
		var body map[string]any
		if err := ctx.Bind(&body); err != nil {
			ctx.Error(400, "invalid body")
			return
		}
		ctx.JSON(201, map[string]string{"message": "User created"})
	})

	r.GET("/static/:name", func(ctx *http.Context) {
		if err := ctx.ServeFile(ctx.Param("name")); err != nil {
			ctx.Error(500, err.Error())
		}
	})

	log.Printf("starting httpd...")
	app.ExitOnFatal(supervisor.Run())
}
