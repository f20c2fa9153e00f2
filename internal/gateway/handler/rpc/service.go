package rpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	contrib "contactdir/internal/contribution"
)

const (
	DirectoryServiceName    = "contactdir.v1.DirectoryService"
	ContributionServiceName = "contactdir.v1.ContributionService"

	DirectoryServiceSearchProcedure    = "/" + DirectoryServiceName + "/Search"
	ContributionServiceSubmitProcedure = "/" + ContributionServiceName + "/Submit"
)

type DirectoryServiceHandler interface {
	Search(context.Context, *connect.Request[SearchRequest]) (*connect.Response[SearchResponse], error)
}

type ContributionServiceHandler interface {
	Submit(context.Context, *connect.Request[contrib.Submission], *connect.ServerStream[SubmitProgress]) error
}

// NewDirectoryServiceHandler returns the path prefix and handler to mount.
func NewDirectoryServiceHandler(svc DirectoryServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSONCodec()}, opts...)
	search := connect.NewUnaryHandler(DirectoryServiceSearchProcedure, svc.Search, opts...)
	return "/" + DirectoryServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case DirectoryServiceSearchProcedure:
			search.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func NewContributionServiceHandler(svc ContributionServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSONCodec()}, opts...)
	submit := connect.NewServerStreamHandler(ContributionServiceSubmitProcedure, svc.Submit, opts...)
	return "/" + ContributionServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ContributionServiceSubmitProcedure:
			submit.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
