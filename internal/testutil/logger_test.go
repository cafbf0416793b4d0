package testutil_test

import (
	"testing"

	"github.com/bitmark-inc/logger"
	"github.com/stretchr/testify/assert"

	"github.com/tolelom/tolmarket/internal/testutil"
)

func TestSetupLoggerIsRepeatable(t *testing.T) {
	testutil.SetupLogger(t)
	testutil.SetupLogger(t)

	assert.NotPanics(t, func() {
		log := logger.New("testutil")
		log.Info("ready")
	})
}
