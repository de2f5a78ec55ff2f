package log

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger interface {
	Error(v ...interface{})
	Warn(v ...interface{})
	Info(v ...interface{})
	Debug(v ...interface{})
	Errorf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Debugf(format string, v ...interface{})
}

var (
	mux           sync.RWMutex
	defaultLogger Logger
)

func init() {
	defaultLogger = NewSugarLogger(NewOptions())
}

// Options 选项配置
type Options struct {
	LogName    string // 日志名称
	LogLevel   string // 日志级别
	FileName   string // 文件名称，为空时不落盘
	Stdout     bool   // 是否同时输出到标准输出
	MaxAge     int    // 日志保留时间，以天为单位
	MaxSize    int    // 日志保留大小，以 M 为单位
	MaxBackups int    // 保留文件个数
	Compress   bool   // 是否压缩
}

// Option 选项方法
type Option func(*Options)

// NewOptions 初始化
func NewOptions(opts ...Option) Options {

	options := Options{
		LogName:    "ola",
		LogLevel:   "info",
		Stdout:     true,
		MaxAge:     10,
		MaxSize:    100,
		MaxBackups: 3,
		Compress:   true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithLogLevel 日志级别
func WithLogLevel(level string) Option {
	return func(o *Options) {
		o.LogLevel = level
	}
}

// WithFileName 日志文件
func WithFileName(filename string) Option {
	return func(o *Options) {
		o.FileName = filename
	}
}

// WithStdout 是否输出到标准输出
func WithStdout(stdout bool) Option {
	return func(o *Options) {
		o.Stdout = stdout
	}
}

// Levels zapcore level
var Levels = map[string]zapcore.Level{
	"":      zapcore.DebugLevel,
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
	"fatal": zapcore.FatalLevel,
}

type zapLoggerWrapper struct {
	*zap.SugaredLogger
	options Options
}

// NewSugarLogger 按照选项构造 zap 日志
func NewSugarLogger(options Options) Logger {
	return newSugarLogger(options)
}

func newSugarLogger(options Options) *zapLoggerWrapper {
	w := &zapLoggerWrapper{options: options}
	encoder := w.getEncoder()
	writeSyncer := w.getLogWriter()
	level, ok := Levels[options.LogLevel]
	if !ok {
		level = zapcore.InfoLevel
	}
	core := zapcore.NewCore(encoder, writeSyncer, level)
	w.SugaredLogger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar().Named(options.LogName)
	return w
}

func (w *zapLoggerWrapper) getEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// 在日志文件中使用大写字母记录日志级别
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	// NewConsoleEncoder 打印更符合人们观察的方式
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func (w *zapLoggerWrapper) getLogWriter() zapcore.WriteSyncer {
	syncers := make([]zapcore.WriteSyncer, 0, 2)
	if w.options.FileName != "" {
		syncers = append(syncers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   w.options.FileName,
			MaxAge:     w.options.MaxAge,
			MaxSize:    w.options.MaxSize,
			MaxBackups: w.options.MaxBackups,
			Compress:   w.options.Compress,
		}))
	}
	if w.options.Stdout || len(syncers) == 0 {
		syncers = append(syncers, zapcore.Lock(os.Stdout))
	}
	return zapcore.NewMultiWriteSyncer(syncers...)
}

// SetDefaultLogger 替换默认日志实现
func SetDefaultLogger(logger Logger) {
	if logger == nil {
		return
	}
	mux.Lock()
	defer mux.Unlock()
	defaultLogger = logger
}

// GetDefaultLogger 获取默认日志实现
func GetDefaultLogger() Logger {
	mux.RLock()
	defer mux.RUnlock()
	return defaultLogger
}

type requestIDKey struct{}

// WithRequestID 把请求 id 写入 ctx，Context 系列方法会带上它
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID 从 ctx 中取出请求 id
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

func loggerFromContext(ctx context.Context) Logger {
	logger := GetDefaultLogger()
	requestID := RequestID(ctx)
	if requestID == "" {
		return logger
	}
	w, ok := logger.(*zapLoggerWrapper)
	if !ok {
		return logger
	}
	return &zapLoggerWrapper{
		SugaredLogger: w.SugaredLogger.With("request_id", requestID),
		options:       w.options,
	}
}

// Debugf 打印 Debug 日志
func Debugf(format string, args ...interface{}) {
	GetDefaultLogger().Debugf(format, args...)
}

// Infof 打印 Info 日志
func Infof(format string, args ...interface{}) {
	GetDefaultLogger().Infof(format, args...)
}

// Warnf 打印 Warn 日志
func Warnf(format string, args ...interface{}) {
	GetDefaultLogger().Warnf(format, args...)
}

// Errorf 打印 Error 日志
func Errorf(format string, args ...interface{}) {
	GetDefaultLogger().Errorf(format, args...)
}

// DebugContext 打印 Debug 日志
func DebugContext(ctx context.Context, args ...interface{}) {
	loggerFromContext(ctx).Debug(args...)
}

// DebugContextf 打印 Debug 日志
func DebugContextf(ctx context.Context, format string, args ...interface{}) {
	loggerFromContext(ctx).Debugf(format, args...)
}

// InfoContext 打印 Info 日志
func InfoContext(ctx context.Context, args ...interface{}) {
	loggerFromContext(ctx).Info(args...)
}

// InfoContextf 打印 Info 日志
func InfoContextf(ctx context.Context, format string, args ...interface{}) {
	loggerFromContext(ctx).Infof(format, args...)
}

// WarnContext 打印 Warn 日志
func WarnContext(ctx context.Context, args ...interface{}) {
	loggerFromContext(ctx).Warn(args...)
}

// WarnContextf 打印 Warn 日志
func WarnContextf(ctx context.Context, format string, args ...interface{}) {
	loggerFromContext(ctx).Warnf(format, args...)
}

// ErrorContext 打印 Error 日志
func ErrorContext(ctx context.Context, args ...interface{}) {
	loggerFromContext(ctx).Error(args...)
}

func ErrorContextf(ctx context.Context, format string, args ...interface{}) {
	loggerFromContext(ctx).Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	Errorf(format, args...)
}
