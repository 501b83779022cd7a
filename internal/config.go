package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,default=8000"`
	GrpcPort             int           `env:"GRPC_PORT,default=8001"`
	DebugPort            int           `env:"DEBUG_PORT,default=8081"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH,required=true"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=2s"`
	WriteWait            time.Duration `env:"WRITE_WAIT,default=10s"`
	PongWait             time.Duration `env:"PONG_WAIT,default=60s"`
	MaxMessageSize       int64         `env:"MAX_MESSAGE_SIZE,default=8192"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=2000"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	RoomBufferSize       int           `env:"ROOM_BUFFER_SIZE,default=128"`
	RoomIdleTimeout      time.Duration `env:"ROOM_IDLE_TIMEOUT,default=1m"`
	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	WSBufferSize         int           `env:"WS_BUFFER_SIZE,default=1024"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	HistoryDefaultLimit  int           `env:"HISTORY_DEFAULT_LIMIT,default=50"`
	HistoryMaxLimit      int           `env:"HISTORY_MAX_LIMIT,default=500"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=10s"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,default=10"`
	LatencyThreshold     time.Duration `env:"LATENCY_THRESHOLD,default=500ms"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	EnableModeration     bool          `env:"ENABLE_MODERATION,default=true"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
	CensoredDir          string        `env:"CENSORED_DIR"`
	AuthJWTSecret        string        `env:"AUTH_JWT_SECRET"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

// Origins splits ALLOWED_ORIGINS, blank entries are dropped.
func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// Validate rejects limits that would make the engine refuse every message.
func (c Config) Validate() error {
	switch {
	case c.ConnectionBufferSize <= 0:
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	case c.WSBufferSize <= 0:
		return fmt.Errorf("WS_BUFFER_SIZE must be positive, got %d", c.WSBufferSize)
	case c.RoomBufferSize <= 0:
		return fmt.Errorf("ROOM_BUFFER_SIZE must be positive, got %d", c.RoomBufferSize)
	case c.MaxContentLength <= 0:
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	case c.HistoryDefaultLimit <= 0 || c.HistoryMaxLimit < c.HistoryDefaultLimit:
		return fmt.Errorf("invalid history limits: default %d, max %d", c.HistoryDefaultLimit, c.HistoryMaxLimit)
	case c.PongWait <= 0:
		return fmt.Errorf("PONG_WAIT must be positive, got %s", c.PongWait)
	}
	return nil
}
