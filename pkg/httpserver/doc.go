// Package httpserver runs an http.Server with timeouts from Config and
// graceful shutdown tied to a context.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// LivenessHandler and ReadinessHandler back the /health endpoints; readiness
// takes named Check probes such as pg.Healthcheck and redis.Healthcheck.
package httpserver
