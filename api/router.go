package api

import (
	"net/http"
	"strings"
)

// HandlerFunc handles one routed request.
type HandlerFunc func(*Context)

type route struct {
	method   string
	segments []string
	handle   HandlerFunc
}

// Router matches fixed path segments and :param captures. The route
// set here is small and static, so matching is a linear scan.
type Router struct {
	routes []route
}

// NewRouter return new router.
func NewRouter() *Router {
	return new(Router)
}

// (*Router).GET registers a GET route.
func (r *Router) GET(path string, handle HandlerFunc) {
	r.Handle(http.MethodGet, path, handle)
}

// (*Router).Handle registers a route for method and path.
func (r *Router) Handle(method, path string, handle HandlerFunc) {
	r.routes = append(r.routes, route{
		method:   method,
		segments: splitPath(path),
		handle:   handle,
	})
}

// (*Router).Group returns a group rooted at path.
func (r *Router) Group(path string) *Group {
	return &Group{path: path, router: r}
}

// ServeHTTP implements the http.Handler interface.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	segments := splitPath(req.URL.Path)

	for _, rt := range r.routes {
		if rt.method != req.Method {
			continue
		}

		params, ok := match(rt.segments, segments)
		if !ok {
			continue
		}

		rt.handle(&Context{Writer: w, Request: req, params: params})
		return
	}

	http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
}

// Group routes under a common prefix.
type Group struct {
	path   string
	router *Router
}

// (*Group).GET registers a GET route under the group prefix.
func (g *Group) GET(path string, handle HandlerFunc) {
	g.router.GET(g.path+path, handle)
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func match(pattern, segments []string) (map[string]string, bool) {
	if len(pattern) != len(segments) {
		return nil, false
	}

	var params map[string]string

	for i, p := range pattern {
		if strings.HasPrefix(p, ":") {
			if segments[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[p[1:]] = segments[i]
			continue
		}

		if p != segments[i] {
			return nil, false
		}
	}

	return params, true
}
