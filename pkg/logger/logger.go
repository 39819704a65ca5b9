package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger 全局日志实例
	Logger *logrus.Logger
	logMu  sync.Mutex
)

// Config 日志配置
type Config struct {
	Level      string // 日志级别: debug, info, warn, error
	OutputFile string // 日志文件路径（可选，为空则只输出到控制台）
	MaxSize    int    // 日志文件最大大小（MB）
	MaxBackups int    // 保留的旧日志文件数量
	MaxAge     int    // 保留旧日志文件的天数
	Compress   bool   // 是否压缩旧日志文件
}

// Init 初始化日志系统
func Init(config Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
		ForceColors:     true,
	})

	var writers []io.Writer
	writers = append(writers, os.Stdout)

	if config.OutputFile != "" {
		logDir := filepath.Dir(config.OutputFile)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    orDefault(config.MaxSize, 50),
			MaxBackups: orDefault(config.MaxBackups, 5),
			MaxAge:     orDefault(config.MaxAge, 14),
			Compress:   config.Compress,
		})
	}

	logger.SetOutput(io.MultiWriter(writers...))

	Logger = logger
	// 让各包的 logrus.WithField 入口也走同样的配置
	logrus.SetLevel(level)
	logrus.SetFormatter(logger.Formatter)
	logrus.SetOutput(logger.Out)
	return nil
}

// InitDefault 使用默认配置初始化（info 级别，仅控制台）
func InitDefault() error {
	return Init(Config{Level: "info"})
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Info 信息日志
func Info(args ...interface{}) { get().Info(args...) }

// Infof 格式化信息日志
func Infof(format string, args ...interface{}) { get().Infof(format, args...) }

// Warnf 格式化警告日志
func Warnf(format string, args ...interface{}) { get().Warnf(format, args...) }

// Errorf 格式化错误日志
func Errorf(format string, args ...interface{}) { get().Errorf(format, args...) }

// Debugf 格式化调试日志
func Debugf(format string, args ...interface{}) { get().Debugf(format, args...) }

func get() *logrus.Logger {
	if Logger == nil {
		return logrus.StandardLogger()
	}
	return Logger
}
