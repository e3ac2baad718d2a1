package wireup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/linux-automation/tacd/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"

	path := filepath.Join(t.TempDir(), "authorized_keys")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	cfg.AuthorizedKeysPath = path

	return cfg
}

func TestBuildRegistersCoreTopics(t *testing.T) {
	sys, err := Build(testConfig(t), logrus.StandardLogger())
	require.NoError(t, err)

	for _, path := range []string{
		"/v1/dut/powered",
		"/v1/dut/feedback/voltage",
		"/v1/dut/feedback/current",
		"/v1/output/0",
		"/v1/output/1",
		"/v1/usb/powered",
		"/v1/iobus/pwr/powered",
		"/v1/tac/led/status",
		"/v1/tac/display/active_screen",
		"/v1/tac/setup_mode",
		"/v1/tac/ssh/authorized_keys",
		"/v1/system/network",
		"/v1/system/hostname",
		"/v1/system/update/rauc/operation",
		"/v1/system/update/channels",
		"/v1/iobus/server/health",
	} {
		_, _, err := sys.Broker.Get(path)
		require.NoErrorf(t, err, "expected %s to be registered and retained", path)
	}
}

func TestSetupModeStartsOpenAndBlocksReentry(t *testing.T) {
	sys, err := Build(testConfig(t), logrus.StandardLogger())
	require.NoError(t, err)

	data, _, err := sys.Broker.Get("/v1/tac/setup_mode")
	require.NoError(t, err)
	require.JSONEq(t, "true", string(data))

	require.NoError(t, sys.Broker.SetExternal("/v1/tac/setup_mode", []byte("false")))

	err = sys.Broker.SetExternal("/v1/tac/setup_mode", []byte("true"))
	require.Error(t, err, "re-entering setup mode over REST must be rejected")
}

func TestAuthorizedKeysGatedBySetupMode(t *testing.T) {
	sys, err := Build(testConfig(t), logrus.StandardLogger())
	require.NoError(t, err)

	require.NoError(t, sys.Broker.SetExternal("/v1/tac/ssh/authorized_keys", []byte(`"ssh-ed25519 AAAA"`)))

	require.NoError(t, sys.Broker.SetExternal("/v1/tac/setup_mode", []byte("false")))
	err = sys.Broker.SetExternal("/v1/tac/ssh/authorized_keys", []byte(`"ssh-ed25519 BBBB"`))
	require.Error(t, err)
}

func TestDutPowerRejectsFaultVariantRequest(t *testing.T) {
	sys, err := Build(testConfig(t), logrus.StandardLogger())
	require.NoError(t, err)

	err = sys.Broker.SetExternal("/v1/dut/powered", []byte(`"OverCurrent"`))
	require.Error(t, err)
}
