package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/raystack/salt/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/config"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/bucket"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/gcp"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/scheduler/composer"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/scheduler/composer/dag"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/ext/scheduler/vertex"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/internal/telemetry"
	"github.com/GoogleCloudDataproc/dataproc-jupyter-plugin/server/handler"
)

const (
	shutdownWait = 30 * time.Second

	// outbound calls to GCP carry their own deadline; object transfers
	// go through gocloud and are bounded by the request context instead
	outboundTimeout = 30 * time.Second

	readTimeout  = 5 * time.Second
	writeTimeout = 60 * time.Second
	idleTimeout  = 120 * time.Second
)

// PluginServer hosts the scheduling engine's HTTP surface.
type PluginServer struct {
	conf *config.Plugin
	l    log.Logger

	httpServer *http.Server
}

func New(conf *config.Plugin) (*PluginServer, error) {
	l := NewLogger(conf.Log.Level)

	resolver := gcp.NewResolver(conf.GCP.APIEndpointOverrides)
	credSource := gcp.NewApplicationDefault(conf.GCP.ProjectID, conf.GCP.Region, resolver)

	outbound := &http.Client{Timeout: outboundTimeout}
	environments := composer.NewClient(outbound, resolver)
	airflow := composer.NewAirflowClient(outbound)

	buckets := bucket.NewGCSFactory(credSource)
	admin := bucket.NewAdmin(credSource)

	compiler, err := dag.NewCompiler()
	if err != nil {
		return nil, err
	}

	composerService := composer.NewService(l, environments, airflow, buckets, compiler)
	vertexService := vertex.NewService(l, vertex.NewClient(outbound, resolver), buckets, admin)

	router := newRouter(l, credSource, composerService, environments, vertexService, admin)

	addr := fmt.Sprintf("%s:%d", conf.Serve.Host, conf.Serve.Port)
	srv := &PluginServer{
		conf: conf,
		l:    l,
		httpServer: &http.Server{
			Handler:      otelhttp.NewHandler(router, "api"),
			Addr:         addr,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
	}
	return srv, nil
}

func newRouter(
	l log.Logger,
	creds gcp.CredentialSource,
	composerService *composer.Service,
	environments *composer.Client,
	vertexService *vertex.Service,
	admin *bucket.Admin,
) *mux.Router {
	composerHandler := handler.NewComposerHandler(l, creds, composerService, environments)
	vertexHandler := handler.NewVertexHandler(l, creds, vertexService)
	storageHandler := handler.NewStorageHandler(l, creds, admin)

	router := mux.NewRouter()
	router.Use(requestLogger(l))

	router.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "pong")
	})
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.Handler())

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/composer/listEnvironments", composerHandler.ListEnvironments).Methods(http.MethodGet)
	api.HandleFunc("/storage/listBuckets", storageHandler.ListBuckets).Methods(http.MethodGet)

	sched := api.PathPrefix("/scheduler").Subrouter()
	sched.HandleFunc("/createJobScheduler", composerHandler.CreateJob).Methods(http.MethodPost)
	sched.HandleFunc("/listDagInfo", composerHandler.ListJobs).Methods(http.MethodGet)
	sched.HandleFunc("/updateJobScheduler", composerHandler.UpdateJob).Methods(http.MethodPost)
	sched.HandleFunc("/deleteJobScheduler", composerHandler.DeleteJob).Methods(http.MethodDelete)
	sched.HandleFunc("/triggerDag", composerHandler.TriggerJob).Methods(http.MethodPost)
	sched.HandleFunc("/dagRun", composerHandler.ListDagRuns).Methods(http.MethodGet)
	sched.HandleFunc("/dagRunTask", composerHandler.ListTaskInstances).Methods(http.MethodGet)
	sched.HandleFunc("/dagRunTaskLogs", composerHandler.GetTaskLogs).Methods(http.MethodGet)
	sched.HandleFunc("/editJobScheduler", composerHandler.EditJob).Methods(http.MethodGet)
	sched.HandleFunc("/downloadOutput", composerHandler.DownloadOutput).Methods(http.MethodGet)
	sched.HandleFunc("/importErrors", composerHandler.ListImportErrors).Methods(http.MethodGet)

	vtx := api.PathPrefix("/vertex").Subrouter()
	vtx.HandleFunc("/createJobScheduler", vertexHandler.CreateSchedule).Methods(http.MethodPost)
	vtx.HandleFunc("/listSchedules", vertexHandler.ListSchedules).Methods(http.MethodGet)
	vtx.HandleFunc("/getSchedule", vertexHandler.GetSchedule).Methods(http.MethodGet)
	vtx.HandleFunc("/pauseSchedule", vertexHandler.PauseSchedule).Methods(http.MethodPost)
	vtx.HandleFunc("/resumeSchedule", vertexHandler.ResumeSchedule).Methods(http.MethodPost)
	vtx.HandleFunc("/deleteSchedule", vertexHandler.DeleteSchedule).Methods(http.MethodDelete)
	vtx.HandleFunc("/triggerSchedule", vertexHandler.TriggerSchedule).Methods(http.MethodPost)
	vtx.HandleFunc("/updateSchedule", vertexHandler.UpdateSchedule).Methods(http.MethodPost)
	vtx.HandleFunc("/listNotebookExecutionJobs", vertexHandler.ListNotebookExecutionJobs).Methods(http.MethodGet)

	return router
}

func requestLogger(l log.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			l.Debug("served request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start).String())
		})
	}
}

// Serve blocks until the listener fails or Shutdown is called.
func (s *PluginServer) Serve() error {
	telemetry.NewGauge("server_boot_time_seconds", map[string]string{}).SetToCurrentTime()
	s.l.Info("starting notebook scheduler", "address", s.httpServer.Addr, "version", s.conf.Version)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *PluginServer) Shutdown() {
	s.l.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.l.Error("forced shutdown", "err", err)
	}
	s.l.Info("server shutdown complete")
}
