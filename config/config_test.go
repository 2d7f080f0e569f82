//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package config

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	cfg := New()
	require.NotNil(t, cfg)

	assert.Equal(t, DefaultWSBind, cfg.WSBind)
	assert.Equal(t, DefaultCheckpointEvery, cfg.CheckpointEvery)
	assert.Equal(t, DefaultCheckpointInterval, cfg.CheckpointInterval)
	assert.Equal(t, DefaultShutdownDeadline, cfg.ShutdownDeadline)
	assert.Equal(t, DefaultPanicLog, cfg.PanicLogPath)

	assert.Equal(t, "", cfg.ErrClassifier.Classify(nil))
	assert.Equal(t, "ETIMEDOUT", cfg.ErrClassifier.Classify(context.DeadlineExceeded))

	assert.False(t, cfg.Now().IsZero())
}

func TestAuditEnabled(t *testing.T) {
	cfg := New()
	assert.False(t, cfg.AuditEnabled())
	cfg.AuditLogPath = "/tmp/audit.log"
	assert.True(t, cfg.AuditEnabled())
}

func TestEncryptionEnabled(t *testing.T) {
	cfg := New()
	assert.False(t, cfg.EncryptionEnabled())
	cfg.EncryptRecipientPubKeyB64Path = "/tmp/recipient.pub.b64"
	assert.True(t, cfg.EncryptionEnabled())
}

func TestResolveWSTokenFromFlag(t *testing.T) {
	cfg := New()
	cfg.WSToken = "flag-token"
	assert.True(t, cfg.ResolveWSToken())
	assert.Equal(t, "flag-token", cfg.WSToken)
}

func TestResolveWSTokenFromEnv(t *testing.T) {
	t.Setenv(WSTokenEnvVar, "env-token")
	cfg := New()
	assert.True(t, cfg.ResolveWSToken())
	assert.Equal(t, "env-token", cfg.WSToken)
}

func TestResolveWSTokenUnset(t *testing.T) {
	os.Unsetenv(WSTokenEnvVar)
	cfg := New()
	assert.False(t, cfg.ResolveWSToken())
	assert.Equal(t, "", cfg.WSToken)
}
