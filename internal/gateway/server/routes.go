package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"contactdir/internal/gateway/handler"
	"contactdir/internal/gateway/handler/rpc"
	"contactdir/internal/gateway/middleware"
	"contactdir/internal/logging"
)

type Handlers struct {
	Directory       *handler.DirectoryHandler
	Contribution    *handler.ContributionHandler
	RPCDirectory    *rpc.DirectoryHandler
	RPCContribution *rpc.ContributionHandler
}

func NewRouter(h Handlers, allowedOrigins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logging.OrNop(logger).Named("http")))
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(middleware.Credential)

	r.Get("/healthz", h.Directory.HandleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", h.Directory.HandleSearch)
		r.Get("/stats", h.Directory.HandleStats)
		r.Get("/companies", h.Directory.HandleCompanies)
		r.Get("/companies/{id}", h.Directory.HandleCompany)

		r.Post("/contributions", h.Contribution.HandleSubmit)
		r.Get("/contributions/ws", h.Contribution.HandleSubmitWS)
		r.Get("/contributions/{runID}", h.Contribution.HandleStatus)
	})

	// RPC Handlers
	path, rpcHandler := rpc.NewDirectoryServiceHandler(h.RPCDirectory)
	r.Handle(path+"*", rpcHandler)
	path, rpcHandler = rpc.NewContributionServiceHandler(h.RPCContribution)
	r.Handle(path+"*", rpcHandler)

	return r
}
