package utils

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	r := require.New(t)

	a := NewLogger(int(logrus.InfoLevel))
	b := NewLogger(int(logrus.WarnLevel))

	r.True(SetLogLevel(logrus.DebugLevel))
	r.Equal(logrus.DebugLevel, a.GetLevel())
	r.Equal(logrus.DebugLevel, b.GetLevel())

	r.False(SetLogLevel(logrus.DebugLevel))
}
