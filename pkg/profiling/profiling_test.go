package profiling

import (
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"

	"referral-ledger/pkg/config"
)

func TestSettings(t *testing.T) {
	cfg := &config.Config{AppName: "referral", AppEnv: "staging", AppVersion: "1.4.0"}
	cfg.Pyroscope.Addr = "http://pyroscope:4040"

	s := Settings(cfg)
	require.Equal(t, "referral", s.ApplicationName)
	require.Equal(t, "http://pyroscope:4040", s.ServerAddress)
	require.Contains(t, s.ProfileTypes, pyroscope.ProfileMutexDuration)
	require.Equal(t, "staging", s.Tags["env"])
}

func TestStartDisabledWithoutAddr(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	require.NoError(t, Start(lc, &config.Config{}))
	lc.RequireStart().RequireStop()
}
