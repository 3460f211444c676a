package server

import (
	"io"

	"github.com/sirupsen/logrus"
)

func discardLoggerForServer() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
