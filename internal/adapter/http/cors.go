package httpadapter

import (
	"context"
	"slices"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

const (
	corsAllowMethods = "GET,POST,OPTIONS"
	corsAllowHeaders = "Content-Type,Accept"
	corsMaxAge       = "600"
)

// corsOrigins is the browser origin allow-list. Empty allows any origin.
type corsOrigins []string

func (o corsOrigins) allow(origin string) string {
	if len(o) == 0 {
		return "*"
	}
	if origin != "" && slices.Contains(o, origin) {
		return origin
	}
	return ""
}

func applyCORSHeaders(ctx *app.RequestContext, origins corsOrigins) {
	allowed := origins.allow(string(ctx.Request.Header.Peek("Origin")))
	if len(origins) > 0 {
		ctx.Response.Header.Set("Vary", "Origin")
	}
	if allowed == "" {
		return
	}
	ctx.Response.Header.Set("Access-Control-Allow-Origin", allowed)
	ctx.Response.Header.Set("Access-Control-Allow-Methods", corsAllowMethods)
	ctx.Response.Header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	ctx.Response.Header.Set("Access-Control-Max-Age", corsMaxAge)
}

// corsMiddleware also answers preflights for paths that only register POST,
// since hertz runs global middleware on its not-found chain.
func corsMiddleware(origins corsOrigins) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		applyCORSHeaders(ctx, origins)
		if string(ctx.Method()) == consts.MethodOptions {
			ctx.AbortWithStatus(consts.StatusNoContent)
			return
		}
		ctx.Next(c)
	}
}
