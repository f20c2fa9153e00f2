package rpc

import (
	"context"

	"connectrpc.com/connect"

	"contactdir/internal/search"
)

type SearchRequest struct {
	Query string `json:"query"`
}

type SearchResponse struct {
	Results []search.Result `json:"results"`
}

type DirectoryHandler struct {
	engine *search.Engine
}

var _ DirectoryServiceHandler = (*DirectoryHandler)(nil)

func NewDirectoryHandler(engine *search.Engine) *DirectoryHandler {
	return &DirectoryHandler{engine: engine}
}

func (h *DirectoryHandler) Search(_ context.Context, req *connect.Request[SearchRequest]) (*connect.Response[SearchResponse], error) {
	return connect.NewResponse(&SearchResponse{Results: h.engine.Search(req.Msg.Query)}), nil
}
