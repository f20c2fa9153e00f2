package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	contrib "contactdir/internal/contribution"
	"contactdir/internal/gateway/middleware"
	"contactdir/internal/githost"
)

const (
	contributionWSWriteWait = 10 * time.Second
	contributionWSPongWait  = 60 * time.Second
	contributionWSPingEvery = (contributionWSPongWait * 9) / 10
)

var contributionWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type contributionWSInbound struct {
	Type string `json:"type"`
	// Token is used when the upgrade request carried no Authorization header.
	Token      string              `json:"token,omitempty"`
	Submission *contrib.Submission `json:"submission,omitempty"`
}

type contributionWSOutbound struct {
	Type    string             `json:"type"`
	RunID   string             `json:"runId,omitempty"`
	State   *contrib.StateView `json:"state,omitempty"`
	Code    string             `json:"code,omitempty"`
	Message string             `json:"message,omitempty"`
}

// HandleSubmitWS accepts {"type":"submit","submission":{...}} messages and
// answers with one "state" message per progress state. One submission runs
// at a time per connection.
func (h *ContributionHandler) HandleSubmitWS(w http.ResponseWriter, r *http.Request) {
	headerCred := middleware.CredentialFromContext(r.Context())

	conn, err := contributionWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(contributionWSPongWait)); err != nil {
		h.logger.Debug("contribution ws set read deadline failed", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(contributionWSPongWait))
	})

	writeCh := make(chan contributionWSOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(contributionWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(contributionWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(contributionWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	var busy atomic.Bool
	for {
		var in contributionWSInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}
		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "ping":
			pushContributionWS(writeCh, contributionWSOutbound{Type: "pong"})
		case "submit":
			if in.Submission == nil {
				pushContributionWS(writeCh, contributionWSOutbound{Type: "error", Code: string(contrib.CodeInvalidInput), Message: "submission is required"})
				continue
			}
			if !busy.CompareAndSwap(false, true) {
				pushContributionWS(writeCh, contributionWSOutbound{Type: "error", Code: "BUSY", Message: "a contribution is already running on this connection"})
				continue
			}
			cred := headerCred
			if cred == "" {
				cred = githost.Credential(strings.TrimSpace(in.Token))
			}
			sub := *in.Submission
			go func() {
				defer busy.Store(false)
				h.runWS(ctx, cred, sub, writeCh)
			}()
		case "":
			pushContributionWS(writeCh, contributionWSOutbound{Type: "error", Code: string(contrib.CodeInvalidInput), Message: "type is required"})
		default:
			pushContributionWS(writeCh, contributionWSOutbound{Type: "error", Code: string(contrib.CodeInvalidInput), Message: "unsupported type: " + in.Type})
		}
	}
}

func (h *ContributionHandler) runWS(ctx context.Context, cred githost.Credential, sub contrib.Submission, writeCh chan contributionWSOutbound) {
	runID := uuid.NewString()
	ctx = contrib.WithRunID(ctx, runID)
	_, _, err := h.svc.Submit(ctx, cred, sub, func(st contrib.State) {
		view := contrib.View(st)
		sendContributionWS(ctx, writeCh, contributionWSOutbound{Type: "state", RunID: runID, State: &view})
	})
	if err != nil {
		var verr *contrib.ValidationError
		code := string(codeOf(err))
		if !errors.As(err, &verr) {
			h.logger.Warn("contribution ws submit failed", zap.String("run_id", runID), zap.Error(err))
		}
		sendContributionWS(ctx, writeCh, contributionWSOutbound{Type: "error", RunID: runID, Code: code, Message: err.Error()})
	}
}

// sendContributionWS blocks until the writer takes out; progress states must not be dropped.
func sendContributionWS(ctx context.Context, writeCh chan contributionWSOutbound, out contributionWSOutbound) {
	select {
	case writeCh <- out:
	case <-ctx.Done():
	}
}

// pushContributionWS never blocks the read loop: when the buffer is full the
// oldest pending message is dropped.
func pushContributionWS(writeCh chan contributionWSOutbound, out contributionWSOutbound) {
	if writeCh == nil {
		return
	}
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
