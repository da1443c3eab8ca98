// zaplogger_logpath.go
package logger

import (
	"os"
	"path/filepath"
	"time"
)

const logFilePrefix = "session_client_"

// EnsureLogFilePath resolves the file a logger should export to.
// A directory (existing or not) gets a timestamped file name appended, an existing file is used as is,
// and an empty path falls back to a timestamped file in the working directory. Parent directories are created.
func EnsureLogFilePath(logPath string) (string, error) {
	if logPath == "" {
		logPath = filepath.Join(".", timestampedLogName())
	} else {
		info, err := os.Stat(logPath)
		switch {
		case os.IsNotExist(err), err == nil && info.IsDir():
			logPath = filepath.Join(logPath, timestampedLogName())
		case err != nil:
			return "", err
		}
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return "", err
	}

	return logPath, nil
}

func timestampedLogName() string {
	return logFilePrefix + time.Now().Format("20060102_150405") + ".log"
}
