// File: utils/logger.go
package utils

import "go.uber.org/zap"

// NewLogger builds the process logger: a human-readable console encoder when
// debugging, structured JSON in production. Components receive it explicitly;
// nothing logs through a global.
func NewLogger(debug bool) (*zap.SugaredLogger, error) {
	var (
		log *zap.Logger
		err error
	)
	if debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return log.Sugar(), nil
}
