package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/callgate/internal/audio"
	"github.com/yoockh/callgate/internal/calls"
	"github.com/yoockh/callgate/internal/models"
	"github.com/yoockh/callgate/internal/services"
	"github.com/yoockh/callgate/internal/telephony"
	"github.com/yoockh/callgate/internal/utils"
)

type TwilioConfig struct {
	PublicHost string
	// AuthToken enables X-Twilio-Signature checks on the answer webhook.
	AuthToken string
	Greeting  string
}

type TwilioHandler struct {
	cfg        TwilioConfig
	calls      *calls.Manager
	recordings services.RecordingService // optional, for the greeting
	validator  *telephony.SignatureValidator
	log        logrus.FieldLogger
	upgrader   websocket.Upgrader
}

func NewTwilioHandler(cfg TwilioConfig, mgr *calls.Manager, recordings services.RecordingService, log logrus.FieldLogger) *TwilioHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &TwilioHandler{
		cfg:        cfg,
		calls:      mgr,
		recordings: recordings,
		log:        log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if cfg.AuthToken != "" {
		h.validator = telephony.NewSignatureValidator(cfg.AuthToken)
	}
	return h
}

// Answer responds to the incoming-call webhook with a greeting and a
// bidirectional media stream back to this server.
func (h *TwilioHandler) Answer(c *gin.Context) {
	const op = "TwilioHandler.Answer"

	if err := c.Request.ParseForm(); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid form body", err))
		return
	}

	if h.validator != nil {
		fullURL := "https://" + strings.TrimSuffix(h.cfg.PublicHost, "/") + c.Request.URL.RequestURI()
		if !h.validator.Validate(fullURL, c.Request.PostForm, c.GetHeader("X-Twilio-Signature")) {
			writeError(c, utils.E(utils.CodeForbidden, op, "invalid twilio signature", nil))
			return
		}
	}

	opts := telephony.AnswerOptions{
		PublicHost: h.cfg.PublicHost,
		Caller:     c.Request.PostForm.Get("From"),
		Greeting:   h.cfg.Greeting,
	}
	if h.recordings != nil {
		if u, ok := h.recordings.GreetingURL(c.Request.Context(), 15*time.Minute); ok {
			opts.GreetingURL = u
		}
	}

	doc, err := telephony.AnswerTwiML(opts)
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to build voice response", err))
		return
	}

	h.log.WithFields(logrus.Fields{
		"call_id": c.Request.PostForm.Get("CallSid"),
		"caller":  opts.Caller,
	}).Info("answering call")
	c.Data(http.StatusOK, "application/xml", []byte(doc))
}

type streamSender struct{ ws *wsConn }

func (s streamSender) Send(m telephony.Outbound) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.ws.writeText(b)
}

// Stream carries one call's media: inbound audio is fed to the call manager
// and replies are played back over the same socket.
func (h *TwilioHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}

	var (
		callID string
		enc    audio.Encoding
		out    *telephony.StreamOutput
		log    = h.log
	)

	defer func() {
		if out != nil {
			out.Close()
		}
		if callID == "" {
			return
		}
		if err := h.calls.End(callID, models.EndReasonHangup); err != nil && !errors.Is(err, calls.ErrUnknownCall) {
			log.WithError(err).Warn("failed to end call")
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, data, rerr := conn.ReadMessage()
		if rerr != nil {
			if callID != "" && !websocket.IsCloseError(rerr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(rerr).Warn("media stream closed")
			}
			return
		}

		msg, err := telephony.ParseInbound(data)
		if err != nil {
			log.WithError(err).Warn("unparseable media stream message")
			continue
		}

		switch msg.Event {
		case telephony.EventConnected:
			// nothing to do until start

		case telephony.EventStart:
			if msg.Start == nil || msg.Start.CallSid == "" {
				log.Warn("start message without call sid")
				return
			}
			enc, err = msg.Start.MediaFormat.AudioEncoding()
			if err != nil {
				log.WithError(err).Error("unsupported media format")
				return
			}
			callID = msg.Start.CallSid
			log = h.log.WithField("call_id", callID)

			out = telephony.NewStreamOutput(streamSender{ws: wc}, msg.Start.StreamSid, log)
			if _, err := h.calls.Start(calls.CallInfo{
				CallID:    callID,
				StreamSID: msg.Start.StreamSid,
				Caller:    msg.Start.Caller(),
			}, out); err != nil {
				log.WithError(err).Warn("rejecting media stream")
				callID = ""
				return
			}

		case telephony.EventMedia:
			if callID == "" || msg.Media == nil {
				continue
			}
			chunk, err := msg.Media.AudioChunk(enc)
			if err != nil {
				log.WithError(err).Warn("dropping undecodable media payload")
				continue
			}
			if err := h.calls.Ingest(callID, chunk); errors.Is(err, calls.ErrCallEnded) {
				callID = ""
				return
			}

		case telephony.EventMark:
			if out != nil && msg.Mark != nil {
				out.Acknowledge(msg.Mark.Name)
			}

		case telephony.EventStop:
			return
		}
	}
}
