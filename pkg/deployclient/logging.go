package deployclient

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

func SetupLogging(cfg Config) {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:          true,
		TimestampFormat:        time.RFC3339,
		DisableLevelTruncation: true,
	})

	switch {
	case cfg.Silent:
		log.SetLevel(log.ErrorLevel)
	case cfg.Verbose:
		log.SetLevel(log.DebugLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}
