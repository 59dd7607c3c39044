package api

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	sources := s.router.Group("/sources")
	{
		sources.GET("", s.sourceHandler.ListSources)
		sources.POST("", s.sourceHandler.AddSource)
		sources.DELETE("/:id", s.sourceHandler.RemoveSource)
		sources.GET("/:id/stats", s.sourceHandler.SourceStats)
	}

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
	}
}
