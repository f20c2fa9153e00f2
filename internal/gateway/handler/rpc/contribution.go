package rpc

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	contrib "contactdir/internal/contribution"
	"contactdir/internal/gateway/middleware"
	contribsvc "contactdir/internal/gateway/service/contribution"
	"contactdir/internal/githost"
)

// SubmitProgress is one streamed state of a contribution run.
type SubmitProgress struct {
	RunID string `json:"runId"`
	contrib.StateView
}

type ContributionHandler struct {
	svc *contribsvc.Service
}

var _ ContributionServiceHandler = (*ContributionHandler)(nil)

func NewContributionHandler(svc *contribsvc.Service) *ContributionHandler {
	return &ContributionHandler{svc: svc}
}

func (h *ContributionHandler) Submit(ctx context.Context, req *connect.Request[contrib.Submission], stream *connect.ServerStream[SubmitProgress]) error {
	cred := middleware.BearerToken(req.Header().Get("Authorization"))
	if cred == "" {
		cred = middleware.CredentialFromContext(ctx)
	}
	runID := uuid.NewString()
	stream.ResponseHeader().Set("X-Run-Id", runID)

	var sendErr error
	_, _, err := h.svc.Submit(contrib.WithRunID(ctx, runID), cred, *req.Msg, func(st contrib.State) {
		if sendErr != nil {
			return
		}
		sendErr = stream.Send(&SubmitProgress{RunID: runID, StateView: contrib.View(st)})
	})
	if err != nil {
		return toContributionError(err)
	}
	return sendErr
}

func toContributionError(err error) error {
	var verr *contrib.ValidationError
	code := connect.CodeInternal
	kind := githost.CodeOf(err)
	switch {
	case errors.As(err, &verr):
		code, kind = connect.CodeInvalidArgument, verr.Code()
	case kind == githost.CodeUnauthorized:
		code = connect.CodeUnauthenticated
	case kind == githost.CodeNotFound:
		code = connect.CodeNotFound
	case kind == githost.CodeTimeout:
		code = connect.CodeDeadlineExceeded
	case kind == githost.CodeRateLimit:
		code = connect.CodeResourceExhausted
	case kind == githost.CodeConflict:
		code = connect.CodeAborted
	case kind == githost.CodeRemote:
		code = connect.CodeUnavailable
	}
	cerr := connect.NewError(code, fmt.Errorf("contribution failed: %w", err))
	if detail, derr := kindDetail(kind); derr == nil {
		cerr.AddDetail(detail)
	}
	return cerr
}

// kindDetail wraps the error classification as a structpb detail {"kind": ...}.
func kindDetail(kind githost.Code) (*connect.ErrorDetail, error) {
	st, err := structpb.NewStruct(map[string]any{"kind": string(kind)})
	if err != nil {
		return nil, err
	}
	return connect.NewErrorDetail(st)
}

// ErrorKind reads the kind detail back from a connect error.
func ErrorKind(err error) string {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return ""
	}
	for _, d := range cerr.Details() {
		v, derr := d.Value()
		if derr != nil {
			continue
		}
		if st, ok := v.(*structpb.Struct); ok {
			return st.GetFields()["kind"].GetStringValue()
		}
	}
	return ""
}
