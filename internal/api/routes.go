package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	mw "github.com/platelab/labeler/internal/api/middleware"
	"github.com/platelab/labeler/internal/media"
)

// Route is one entry of the HTTP route table.
type Route struct {
	Method     string
	Path       string
	Name       string
	Handler    echo.HandlerFunc
	Middleware []echo.MiddlewareFunc
}

// routeTable returns every route the server exposes.
func (s *Server) routeTable() []Route {
	routes := []Route{
		{Method: http.MethodGet, Path: "/health", Name: "health", Handler: s.healthCheck},

		{Method: http.MethodGet, Path: "/images/all", Name: "images.all", Handler: s.listImages},
		{Method: http.MethodGet, Path: "/images/counts", Name: "images.counts", Handler: s.countImages},
		{Method: http.MethodGet, Path: "/images/image-details/*", Name: "images.details", Handler: s.imageDetails},

		{Method: http.MethodPost, Path: "/images/label", Name: "images.label", Handler: s.updateLabel},
		{Method: http.MethodPost, Path: "/images/valid", Name: "images.valid", Handler: s.markValid},
		{Method: http.MethodPost, Path: "/images/invalid", Name: "images.invalid", Handler: s.markInvalid},
		{Method: http.MethodPost, Path: "/images/skip", Name: "images.skip", Handler: s.markSkipped},

		{Method: http.MethodGet, Path: "/preview_crop/*", Name: "preview.crop", Handler: s.previewCrop, Middleware: s.cropMiddleware()},
	}

	for _, c := range media.Categories {
		routes = append(routes, Route{
			Method:  http.MethodGet,
			Path:    "/" + string(c) + "/*",
			Name:    "media." + string(c),
			Handler: s.serveImage(c),
		})
	}

	if s.metricsEnabled() {
		routes = append(routes, Route{
			Method:  http.MethodGet,
			Path:    "/metrics",
			Name:    "metrics",
			Handler: echo.WrapHandler(s.metrics.Handler()),
		})
	}

	return routes
}

func (s *Server) cropMiddleware() []echo.MiddlewareFunc {
	if s.config.CropRateLimit <= 0 {
		return nil
	}
	return []echo.MiddlewareFunc{mw.NewRateLimiter(s.config.CropRateLimit, cropRateBurst, errorBody)}
}

// validateRoutes rejects tables with incomplete entries or two handlers for
// the same method and path.
func validateRoutes(routes []Route) error {
	seen := make(map[string]string, len(routes))
	names := make(map[string]struct{}, len(routes))
	for i, r := range routes {
		switch {
		case r.Method == "":
			return fmt.Errorf("route %d (%s): empty method", i, r.Path)
		case r.Path == "" || !strings.HasPrefix(r.Path, "/"):
			return fmt.Errorf("route %d (%s %s): path must start with /", i, r.Method, r.Path)
		case r.Handler == nil:
			return fmt.Errorf("route %s %s: nil handler", r.Method, r.Path)
		}

		key := r.Method + " " + r.Path
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("duplicate route %s (%s and %s)", key, prev, r.Name)
		}
		seen[key] = r.Name

		if r.Name != "" {
			if _, dup := names[r.Name]; dup {
				return fmt.Errorf("duplicate route name %q", r.Name)
			}
			names[r.Name] = struct{}{}
		}
	}
	return nil
}

func (s *Server) registerRoutes(routes []Route) {
	for _, r := range routes {
		route := s.echo.Add(r.Method, r.Path, r.Handler, r.Middleware...)
		route.Name = r.Name
	}
	s.log.Debug("routes registered")
}
