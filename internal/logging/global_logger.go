package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adrg/xdg"
	"github.com/docgpt/docgpt/internal/config"
	"github.com/docgpt/docgpt/internal/util"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const activeLogName = "main.log"

var (
	setupOnce sync.Once

	outputMu sync.Mutex
	fileOut  *lumberjack.Logger
	ginPipes []*io.PipeWriter
)

// LogFormatter renders one line per entry:
//
//	[2026-10-17 20:14:04] [a1b2c3d4] [info ] [authorize.go:88] state transition state=code_wait port=51234
//
// Only the fields in shownFields are printed, in that order.
type LogFormatter struct{}

var shownFields = []string{"state", "from", "service", "user", "port", "repo", "attempt", "reason", "error"}

func (*LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	buf := entry.Buffer
	if buf == nil {
		buf = new(bytes.Buffer)
	}

	id, _ := entry.Data["request_id"].(string)
	if id == "" {
		id = "--------"
	}
	level := entry.Level.String()
	if entry.Level == log.WarnLevel {
		level = "warn"
	}

	fmt.Fprintf(buf, "[%s] [%s] [%-5s] ", entry.Time.Format("2006-01-02 15:04:05"), id, level)
	if entry.Caller != nil {
		fmt.Fprintf(buf, "[%s:%d] ", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	buf.WriteString(strings.TrimRight(entry.Message, "\r\n"))
	for _, key := range shownFields {
		if v, ok := entry.Data[key]; ok {
			fmt.Fprintf(buf, " %s=%v", key, v)
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// SetupBaseLogger points logrus at stdout with LogFormatter and routes Gin's own output
// through logrus. Only the first call has an effect.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&LogFormatter{})

		gin.SetMode(gin.ReleaseMode)
		info := log.StandardLogger().Writer()
		errs := log.StandardLogger().WriterLevel(log.ErrorLevel)
		gin.DefaultWriter, gin.DefaultErrorWriter = info, errs
		ginPipes = []*io.PipeWriter{info, errs}
		gin.DebugPrintFunc = func(format string, values ...any) {
			log.Debugf(strings.TrimRight(format, "\r\n"), values...)
		}

		log.RegisterExitHandler(closeLogOutputs)
	})
}

// ResolveLogDirectory picks the log directory: the configured log-dir first, then
// WRITABLE_PATH/logs, then docgpt/logs under the XDG data home.
func ResolveLogDirectory(cfg *config.Config) string {
	if cfg != nil && strings.TrimSpace(cfg.LogDir) != "" {
		dir, err := util.ExpandPath(cfg.LogDir)
		if err == nil && dir != "" {
			return dir
		}
		log.Warnf("cannot use log-dir %q: %v", cfg.LogDir, err)
	}
	if base := util.WritablePath(); base != "" {
		return filepath.Join(base, "logs")
	}
	active, err := xdg.DataFile(filepath.Join("docgpt", "logs", activeLogName))
	if err != nil {
		log.Warnf("cannot resolve XDG data directory for logs: %v", err)
		return "logs"
	}
	return filepath.Dir(active)
}

// ConfigureLogOutput sends logs to stdout, or to a rotating main.log when logging-to-file
// is set. Rotated logs over logs-max-total-size-mb are pruned before the file is opened.
func ConfigureLogOutput(cfg *config.Config) error {
	SetupBaseLogger()
	if cfg == nil {
		cfg = &config.Config{}
	}

	outputMu.Lock()
	defer outputMu.Unlock()
	log.SetOutput(os.Stdout)
	closeFileOutLocked()
	if !cfg.LoggingToFile {
		return nil
	}

	dir := ResolveLogDirectory(cfg)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logging: create log directory: %w", err)
	}
	active := filepath.Join(dir, activeLogName)
	removed, err := pruneLogDir(dir, int64(cfg.LogsMaxTotalSizeMB)<<20, active)
	switch {
	case err != nil:
		log.WithError(err).Warn("logging: pruning log directory failed")
	case removed > 0:
		log.Debugf("logging: removed %d old log file(s)", removed)
	}

	fileOut = &lumberjack.Logger{Filename: active, MaxSize: 10}
	log.SetOutput(fileOut)
	return nil
}

func closeFileOutLocked() {
	if fileOut != nil {
		_ = fileOut.Close()
		fileOut = nil
	}
}

func closeLogOutputs() {
	outputMu.Lock()
	defer outputMu.Unlock()
	closeFileOutLocked()
	for _, p := range ginPipes {
		_ = p.Close()
	}
	ginPipes = nil
}
