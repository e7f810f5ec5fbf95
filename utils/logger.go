package utils

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger *zap.Logger

// InitLogger 初始化日志
// LOG_MODE=dev 时输出开发格式，默认生产JSON格式
func InitLogger() error {
	var config zap.Config
	if os.Getenv("LOG_MODE") == "dev" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	logger, err := config.Build()
	if err != nil {
		return err
	}

	Logger = logger
	zap.ReplaceGlobals(logger)
	return nil
}

// SyncLogger 进程退出前刷新缓冲日志
func SyncLogger() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}
