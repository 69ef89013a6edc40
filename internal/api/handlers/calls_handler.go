package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/callgate/internal/calls"
	"github.com/yoockh/callgate/internal/dialogue"
	"github.com/yoockh/callgate/internal/models"
	"github.com/yoockh/callgate/internal/services"
	"github.com/yoockh/callgate/internal/utils"
)

type CallsHandler struct {
	manager     *calls.Manager
	calls       services.CallService
	utterances  services.UtteranceService
	transcripts services.TranscriptService
	recordings  services.RecordingService // optional
}

func NewCallsHandler(mgr *calls.Manager, cs services.CallService, us services.UtteranceService, ts services.TranscriptService, rs services.RecordingService) *CallsHandler {
	return &CallsHandler{manager: mgr, calls: cs, utterances: us, transcripts: ts, recordings: rs}
}

// LiveCall is the in-memory view of a call that is still connected.
type LiveCall struct {
	CallID       string            `json:"call_id"`
	StreamSID    string            `json:"stream_sid,omitempty"`
	Caller       string            `json:"caller,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	LastActivity time.Time         `json:"last_activity"`
	Auth         dialogue.Snapshot `json:"auth"`
	Queued       int               `json:"queued_utterances"`
	Utterances   int64             `json:"utterances"`
	Dropped      int64             `json:"dropped_chunks"`
}

func liveView(s *calls.Session) LiveCall {
	info := s.Info()
	return LiveCall{
		CallID:       info.CallID,
		StreamSID:    info.StreamSID,
		Caller:       info.Caller,
		StartedAt:    info.StartedAt,
		LastActivity: s.LastActivity(),
		Auth:         s.Auth(),
		Queued:       s.Queued(),
		Utterances:   s.Utterances(),
		Dropped:      s.Dropped(),
	}
}

type CallResponse struct {
	Call *models.Call `json:"call,omitempty"`
	Live *LiveCall    `json:"live,omitempty"`
}

func (h *CallsHandler) List(c *gin.Context) {
	if _, ok := requireOperator(c); !ok {
		return
	}

	status := c.Query("status")
	if status != "" && status != models.CallStatusActive && status != models.CallStatusEnded {
		writeError(c, utils.E(utils.CodeInvalidArgument, "CallsHandler.List", "status must be active or ended", nil))
		return
	}

	rows, err := h.calls.ListRecent(c.Request.Context(), status, int64(queryLimit(c, 50, 200)))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows})
}

func (h *CallsHandler) Live(c *gin.Context) {
	if _, ok := requireOperator(c); !ok {
		return
	}

	sessions := h.manager.Registry().List()
	out := make([]LiveCall, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, liveView(s))
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

func (h *CallsHandler) Get(c *gin.Context) {
	if _, ok := requireOperator(c); !ok {
		return
	}

	callID := c.Param("call_id")
	var resp CallResponse

	if s, err := h.manager.Get(callID); err == nil {
		v := liveView(s)
		resp.Live = &v
	}

	call, err := h.calls.Get(c.Request.Context(), callID)
	switch {
	case err == nil:
		resp.Call = call
	case utils.IsCode(err, utils.CodeNotFound) && resp.Live != nil:
		// the start hook may not have persisted yet
	default:
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type UtteranceView struct {
	models.Utterance
	AudioURL string `json:"audio_url,omitempty"`
	ReplyURL string `json:"reply_url,omitempty"`
}

func (h *CallsHandler) Utterances(c *gin.Context) {
	if _, ok := requireOperator(c); !ok {
		return
	}

	ctx := c.Request.Context()
	rows, err := h.utterances.ListByCall(ctx, c.Param("call_id"), int64(queryLimit(c, 100, 500)))
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]UtteranceView, len(rows))
	for i, u := range rows {
		out[i] = UtteranceView{Utterance: u}
		if h.recordings == nil {
			continue
		}
		if u.AudioPath != "" {
			out[i].AudioURL, _ = h.recordings.SignedURL(ctx, u.AudioPath, 15*time.Minute)
		}
		if u.ReplyPath != "" {
			out[i].ReplyURL, _ = h.recordings.SignedURL(ctx, u.ReplyPath, 15*time.Minute)
		}
	}
	c.JSON(http.StatusOK, gin.H{"utterances": out})
}

func (h *CallsHandler) Transcript(c *gin.Context) {
	if _, ok := requireOperator(c); !ok {
		return
	}

	rows, err := h.transcripts.ListByCall(c.Request.Context(), c.Param("call_id"), queryLimit(c, 500, 2000))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": rows})
}

// Hangup ends a live call on an operator's request.
func (h *CallsHandler) Hangup(c *gin.Context) {
	const op = "CallsHandler.Hangup"

	if _, ok := requireOperator(c); !ok {
		return
	}

	callID := c.Param("call_id")
	if err := h.manager.End(callID, models.EndReasonOperator); err != nil {
		if errors.Is(err, calls.ErrUnknownCall) {
			writeError(c, utils.E(utils.CodeNotFound, op, "call is not live", err))
			return
		}
		writeError(c, utils.E(utils.CodeInternal, op, "failed to end call", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": callID, "status": models.CallStatusEnded})
}
