package attribution

import "github.com/gin-gonic/gin"

// GinMiddleware captures UTM parameters on every request that carries them,
// persists the merged record and exposes it on the request context.
func GinMiddleware(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		stored := s.FromRequest(c.Request)
		rec := stored
		if captured, ok := s.Capture(c.Request.URL.Query()); ok {
			rec = Apply(stored, captured, s.policy)
			s.Write(c.Writer, rec)
		}
		c.Request = c.Request.WithContext(WithRecord(c.Request.Context(), rec))
		c.Next()
	}
}
