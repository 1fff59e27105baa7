// internal/utils/error_handler.go
package utils

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"
)

// HandleError logs err with message. Context cancellation is logged at debug
// level since it is the normal way to stop. Reports whether err was non-nil.
func HandleError(logger *zap.Logger, err error, message string, fields ...zap.Field) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		logger.Debug(message, append(fields, zap.Error(err))...)
		return true
	}
	logger.Error(message, append(fields, zap.Error(err))...)
	return true
}

// CloseWithLog closes c and logs a failure under name.
func CloseWithLog(logger *zap.Logger, name string, c io.Closer) {
	HandleError(logger, c.Close(), "Failed to close "+name, zap.String("component", name))
}
