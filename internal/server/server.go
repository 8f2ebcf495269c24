// Package server is the HTTP surface: uploads, existence checks, code
// intelligence requests, and queue statistics.
package server

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sourcegraph/lsif-server/internal/api"
	"github.com/sourcegraph/lsif-server/internal/bundles"
	"github.com/sourcegraph/lsif-server/internal/queue"
	"github.com/sourcegraph/lsif-server/internal/trace/ot"
)

// CodeIntelAPI is the slice of the backend the handlers need.
type CodeIntelAPI interface {
	Exists(ctx context.Context, repository, commit, file string) (bool, error)
	Definitions(ctx context.Context, repository, commit, file string, line, character int) ([]api.ResolvedLocation, error)
	References(ctx context.Context, repository, commit, file string, line, character int) ([]api.ResolvedLocation, error)
	Hover(ctx context.Context, repository, commit, file string, line, character int) (string, bundles.Range, bool, error)
}

var _ CodeIntelAPI = &api.CodeIntelAPI{}

// JobQueue is the slice of the job pipeline the handlers need.
type JobQueue interface {
	Enqueue(ctx context.Context, name string, payload interface{}) (queue.Job, error)
	EnqueueUnique(ctx context.Context, name string, payload interface{}) (queue.Job, bool, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

var _ JobQueue = &queue.Queue{}

type Server struct {
	host         string
	port         int
	storageRoot  string
	codeIntelAPI CodeIntelAPI
	jobQueue     JobQueue
}

type ServerOpts struct {
	Host         string
	Port         int
	StorageRoot  string
	CodeIntelAPI CodeIntelAPI
	JobQueue     JobQueue
}

func New(opts ServerOpts) *Server {
	return &Server{
		host:         opts.Host,
		port:         opts.Port,
		storageRoot:  opts.StorageRoot,
		codeIntelAPI: opts.CodeIntelAPI,
		jobQueue:     opts.JobQueue,
	}
}

func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, strconv.FormatInt(int64(s.port), 10))
	handler := ot.Middleware(gziphandler.GzipHandler(s.handler()))
	server := &http.Server{Addr: addr, Handler: handler}

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) handler() http.Handler {
	mux := mux.NewRouter()
	mux.Path("/upload").Methods("POST").HandlerFunc(s.handleUpload)
	mux.Path("/exists").Methods("POST").HandlerFunc(s.handleExists)
	mux.Path("/request").Methods("POST").HandlerFunc(s.handleRequest)
	mux.Path("/jobs/stats").Methods("GET").HandlerFunc(s.handleJobStats)
	mux.Path("/metrics").Methods("GET").Handler(promhttp.Handler())
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/ping", handleHealth)
	return mux
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
