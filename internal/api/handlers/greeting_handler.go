package handlers

import (
	"bytes"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/callgate/internal/audio"
	"github.com/yoockh/callgate/internal/services"
	"github.com/yoockh/callgate/internal/utils"
)

const maxGreetingBytes = 5 << 20

type GreetingHandler struct {
	svc services.RecordingService
}

func NewGreetingHandler(svc services.RecordingService) *GreetingHandler {
	return &GreetingHandler{svc: svc}
}

// Upload replaces the prerecorded greeting played when a call is answered.
func (h *GreetingHandler) Upload(c *gin.Context) {
	const op = "GreetingHandler.Upload"

	if _, ok := requireOperator(c); !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing multipart field 'file'", err))
		return
	}

	if ext := strings.ToLower(filepath.Ext(fh.Filename)); ext != ".wav" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "only .wav is allowed", nil))
		return
	}
	if fh.Size <= 0 || fh.Size > maxGreetingBytes {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "file too large (max 5MB)", nil))
		return
	}

	file, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to open upload", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxGreetingBytes))
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to read upload", err))
		return
	}
	if ct := http.DetectContentType(data); ct != "audio/wave" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid content type (must be wav)", nil))
		return
	}
	if _, err := audio.DecodeWAV(data); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "unsupported wav encoding", err))
		return
	}

	path, err := h.svc.UploadGreeting(c.Request.Context(), bytes.NewReader(data))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"object": path})
}
