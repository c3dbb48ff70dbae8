package devbackend

import (
	"fmt"
)

const (
	green      = "\033[32m"
	blue       = "\033[34m"
	cyan       = "\033[36m"
	yellow     = "\033[33m"
	magenta    = "\033[35m"
	gray       = "\033[90m"
	resetColor = "\033[0m"
)

var methodColors = map[string]string{
	"GET":    green,
	"POST":   blue,
	"PUT":    cyan,
	"DELETE": yellow,
	"PATCH":  magenta,
}

// WithRouteLogging prints the registered routes once at start-up.
func WithRouteLogging(enabled bool) ServerOption {
	return func(s *Server) {
		s.logRoutes = enabled
	}
}

// Routes lists the registered routes as "METHOD /path".
func (s *Server) Routes() []string {
	routes := make([]string, 0, len(s.router.Routes()))
	for _, r := range s.router.Routes() {
		routes = append(routes, r.Method+" "+r.Path)
	}
	return routes
}

func (s *Server) printRoutes() {
	for _, r := range s.router.Routes() {
		s.logger.Info().Msg(fmt.Sprintf("[%-19s] %s", colorMethod(r.Method), r.Path))
	}
}

func colorMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + resetColor
	}
	return gray + paddedMethod + resetColor
}
