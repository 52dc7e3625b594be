// Package api exposes the control surface the surrounding application
// drives: provider selection, cache purge, proxy start/stop, and
// prometheus metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/semihalev/zlog/v2"

	"github.com/bigc0127/evoarc-dns/config"
	"github.com/bigc0127/evoarc-dns/proxy"
	"github.com/bigc0127/evoarc-dns/resolver"
)

// API type
type API struct {
	addr     string
	router   *Router
	resolver *resolver.Resolver
	proxy    *proxy.Proxy

	srv *http.Server
}

// New return new api
func New(cfg *config.Config, r *resolver.Resolver, p *proxy.Proxy) *API {
	a := &API{
		addr:     cfg.API,
		router:   NewRouter(),
		resolver: r,
		proxy:    p,
	}

	a.routes()

	return a
}

func (a *API) routes() {
	v1 := a.router.Group("/api/v1")
	{
		v1.GET("/provider", a.getProvider)
		v1.GET("/provider/set/:name", a.setProvider)
		v1.GET("/providers", a.listProviders)
		v1.GET("/cache/purge", a.purgeCache)
		v1.GET("/cache/stats", a.cacheStats)
		v1.GET("/proxy/start", a.startProxy)
		v1.GET("/proxy/stop", a.stopProxy)
		v1.GET("/proxy/status", a.proxyStatus)
	}

	a.router.GET("/metrics", a.metrics)
}

func (a *API) getProvider(ctx *Context) {
	p := a.resolver.CurrentProvider()
	ctx.JSON(http.StatusOK, Json{"provider": p.Name, "json": p.JSON(), "wire": p.Wire})
}

func (a *API) setProvider(ctx *Context) {
	if err := a.resolver.SetProvider(ctx.Param("name")); err != nil {
		ctx.JSON(http.StatusBadRequest, Json{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, Json{"success": true, "provider": a.resolver.CurrentProvider().Name})
}

func (a *API) listProviders(ctx *Context) {
	ctx.JSON(http.StatusOK, Json{"providers": resolver.ProviderNames()})
}

func (a *API) purgeCache(ctx *Context) {
	a.resolver.ClearCache()
	ctx.JSON(http.StatusOK, Json{"success": true})
}

func (a *API) cacheStats(ctx *Context) {
	ctx.JSON(http.StatusOK, Json{"entries": a.resolver.CacheLen()})
}

func (a *API) startProxy(ctx *Context) {
	if err := a.proxy.Start(); err != nil {
		ctx.JSON(http.StatusConflict, Json{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, Json{"success": true, "addr": a.proxy.Addr()})
}

func (a *API) stopProxy(ctx *Context) {
	a.proxy.Stop()
	ctx.JSON(http.StatusOK, Json{"success": true})
}

func (a *API) proxyStatus(ctx *Context) {
	ctx.JSON(http.StatusOK, Json{
		"state":          a.proxy.State().String(),
		"addr":           a.proxy.Addr(),
		"active_queries": a.proxy.ActiveQueries(),
	})
}

func (a *API) metrics(ctx *Context) {
	promhttp.Handler().ServeHTTP(ctx.Writer, ctx.Request)
}

// (*API).Run starts the API server, left blank address for disabled.
func (a *API) Run() {
	if a.addr == "" {
		return
	}

	a.srv = &http.Server{
		Addr:         a.addr,
		Handler:      a.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("API server listening...", "addr", a.addr)

		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Error("API listener failed", "addr", a.addr, "error", err.Error())
		}
	}()
}

// (*API).Shutdown stops the API server.
func (a *API) Shutdown(ctx context.Context) error {
	if a.srv == nil {
		return nil
	}
	return a.srv.Shutdown(ctx)
}
