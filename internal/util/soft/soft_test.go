package soft

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestResult(t *testing.T) {
	ok := Try(func() (bool, error) { return true, nil })
	assert.True(t, ok.OK())
	assert.True(t, ok.Or(false))

	failed := Try(func() (bool, error) { return true, errors.New("db locked") })
	assert.False(t, failed.OK())
	assert.False(t, failed.Or(false), "failure should yield the default")
}

func TestResult_Log(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	Try(func() (int, error) { return 1, nil }).Log(logger, "feedback")
	assert.Equal(t, 0, logs.Len())

	r := Try(func() (int, error) { return 0, errors.New("timeout") }).Log(logger, "feedback")
	assert.Equal(t, 7, r.Or(7))
	assert.Equal(t, 1, logs.FilterField(zap.String("op", "feedback")).Len())

	// nil logger is tolerated
	Try(func() (int, error) { return 0, errors.New("x") }).Log(nil, "op")
}

func TestDo(t *testing.T) {
	assert.True(t, Do(nil, "persist", func() error { return nil }))
	assert.False(t, Do(zap.NewNop(), "persist", func() error { return errors.New("disk full") }))
}
