package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/getmentor/consultations-api/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

const clientLogFile = "client.log"

// ClientLogEntry is one log line reported by a marketplace client
type ClientLogEntry struct {
	Timestamp string         `json:"timestamp" binding:"required,max=64"`
	Level     string         `json:"level" binding:"required,oneof=debug info warn error"`
	Message   string         `json:"message" binding:"required,max=2000"`
	Context   map[string]any `json:"context,omitempty" binding:"max=30"`
}

// ClientLogBatch is the body of POST /api/v1/logs
type ClientLogBatch struct {
	Logs []ClientLogEntry `json:"logs" binding:"required,min=1,max=100,dive"`
}

// LogsHandler appends client logs, tagged with the reporting actor, to a rotating file
// next to the service logs
type LogsHandler struct {
	mu  sync.Mutex
	out io.WriteCloser
}

// NewLogsHandler writes to client.log in logDir
func NewLogsHandler(logDir string) *LogsHandler {
	return newLogsHandler(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, clientLogFile),
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
}

func newLogsHandler(out io.WriteCloser) *LogsHandler {
	return &LogsHandler{out: out}
}

// ReceiveClientLogs handles POST /api/v1/logs
func (h *LogsHandler) ReceiveClientLogs(c *gin.Context) {
	session, ok := actorSession(c)
	if !ok {
		return
	}

	var batch ClientLogBatch
	if !bindJSON(c, &batch) {
		return
	}

	if err := h.write(batch.Logs, session.ActorID, string(session.Role)); err != nil {
		logger.Error("Failed to write client logs", zap.Error(err), zap.String("actor_id", session.ActorID))
		respondError(c, http.StatusInternalServerError, "Failed to write logs", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "received": len(batch.Logs)})
}

func (h *LogsHandler) write(entries []ClientLogEntry, actorID, role string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	encoder := json.NewEncoder(h.out)
	for _, entry := range entries {
		line := make(map[string]any, len(entry.Context)+6)
		for k, v := range entry.Context {
			line[k] = v
		}
		// Reserved keys win over client context
		line["ts"] = entry.Timestamp
		line["level"] = entry.Level
		line["msg"] = entry.Message
		line["service"] = "client"
		line["actor_id"] = actorID
		line["actor_role"] = role

		if err := encoder.Encode(line); err != nil {
			return fmt.Errorf("failed to encode client log entry: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the log file
func (h *LogsHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out.Close()
}
