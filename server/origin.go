package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
)

func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
}

// allowedOrigins returns the configured origins in the form browsers send them.
func (s *Server) allowedOrigins() []string {
	origins := make([]string, 0, len(s.cfg.AllowedOrigins))
	for _, origin := range s.cfg.AllowedOrigins {
		if origin = normalizeOrigin(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// originAllowed decides the websocket upgrade. Requests without an Origin (non-browser clients) are
// always allowed, as is everything when no origins are configured.
func (s *Server) originAllowed(origin string) bool {
	origin = normalizeOrigin(origin)
	allowed := s.allowedOrigins()
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// cors lets browser frontends served from another origin call the room endpoints.
func (s *Server) cors() func(http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins(s.allowedOrigins()),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.MaxAge(600),
		handlers.OptionStatusCode(http.StatusNoContent),
	)
}
