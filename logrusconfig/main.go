package logrusconfig

import (
	"flag"
	"io"

	prefixed "github.com/BertoldVdb/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"
)

var (
	loglevel *int
	logjson  *bool
)

// InitParam registers the logging flags. Call it before flag.Parse.
func InitParam() {
	loglevel = flag.Int("loglevel", int(logrus.InfoLevel), "The loglevel to use. Valid values are from 0 to 6. Higher values output more information")
	logjson = flag.Bool("logjson", false, "Write log lines as JSON")
}

func newLogger(level logrus.Level) *logrus.Logger {
	logrus.ErrorKey = "$error"
	logger := logrus.New()
	if loglevel == nil {
		logger.SetLevel(level)
	} else {
		logger.SetLevel(logrus.Level(*loglevel))
	}

	if logjson != nil && *logjson {
		logger.SetFormatter(&logrus.JSONFormatter{})
		return logger
	}

	customFormatter := new(prefixed.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02 15:04:05"
	customFormatter.FullTimestamp = true
	customFormatter.PrefixPadding = 10
	customFormatter.SpacePadding = 40
	logger.SetFormatter(customFormatter)
	return logger
}

// GetLogger returns an entry at level, unless the -loglevel flag overrides it
func GetLogger(level logrus.Level) *logrus.Entry {
	return logrus.NewEntry(newLogger(level))
}

// GetPrefixedLogger is GetLogger with the prefix shown in front of every line
func GetPrefixedLogger(level logrus.Level, prefix string) *logrus.Entry {
	return GetLogger(level).WithField("prefix", prefix)
}

// Discard returns an entry that drops everything, for tests and library defaults
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
