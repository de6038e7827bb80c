package logger

import "strings"

// Level names as written to the level field.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error", "fatal":
		return LevelError
	}
	return strings.ToUpper(level)
}

// normalizeStatus lowercases status and settles the spelling of "cancelled".
func normalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "canceled" {
		return "cancelled"
	}
	return status
}

// defaultKeyOrder puts the fields people grep for first: who, which
// conversation, then what happened to which inquiry. Keys not listed
// follow alphabetically.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"conversation_id",
	"platform",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"kind",
	"step",
	"from",
	"to",
	"intent",
	"confidence",
	"inquiry_id",
	"vendor_id",
	"material",
	"city",
	"vendors",
	"sent",
	"responses",
	"quotes",
	"timer_cancelled",
	"action",
	"cb_key",
	"replies",
	"buttons",
	"attempt",
	"attempts",
	"delay_ms",
	"took_ms",
	"duration_ms",
	"payload",
	"username",
	"lang",
	"method",
	"path",
	"http_code",
	"ip",
	"mode",
	"listen",
	"public_url",
	"driver",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"error_kind",
	"reason",
	"cause",
}
