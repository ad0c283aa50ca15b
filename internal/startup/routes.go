package startup

import (
	"sort"
	"strings"

	"github.com/gorilla/mux"
	"github.com/jedib0t/go-pretty/v6/table"

	"media-transcoder/internal/logging"
)

// RouteInfo is one method/path pair registered on the router.
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// GetRoutes lists every method/path pair on router. Routes without a
// method matcher are reported as "*".
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return err
		}
		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}
		for _, method := range methods {
			routes = append(routes, RouteInfo{Method: method, Path: path, Name: route.GetName()})
		}
		return nil
	})
	return routes, err
}

// LogHTTPRoutes prints the route table at debug level.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	section("HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("  error walking routes: %v", err)
		}
		for _, line := range strings.Split(renderRoutes(routes), "\n") {
			logging.Debug("  %s", line)
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// renderRoutes draws routes as a table grouped and sorted by getRouteGroup.
func renderRoutes(routes []RouteInfo) string {
	sorted := append([]RouteInfo(nil), routes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		gi, gj := getRouteGroup(sorted[i].Path), getRouteGroup(sorted[j].Path)
		if gi != gj {
			return gi < gj
		}
		return sorted[i].Path < sorted[j].Path
	})

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Group", "Method", "Path"})
	for _, r := range sorted {
		group := getRouteGroup(r.Path)
		if group == "" {
			group = "root"
		}
		t.AppendRow(table.Row{group, r.Method, r.Path})
	}
	t.SetCaption("%d routes", len(sorted))
	return t.Render()
}

// getRouteGroup returns the first path segment, or "api/<resource>" for
// API routes.
func getRouteGroup(path string) string {
	first, rest, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if first == "api" && rest != "" {
		resource, _, _ := strings.Cut(rest, "/")
		return "api/" + resource
	}
	return first
}
