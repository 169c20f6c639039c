package app

import (
	"os"
	"testing"

	"github.com/specialistvlad/dungeonjob/internal/hcl"
	"github.com/specialistvlad/dungeonjob/internal/registry"
	"github.com/specialistvlad/dungeonjob/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. The pipeline
// is loaded with the given environment instead of the process environment.
func SetupAppTest(t *testing.T, cfg *Config, env map[string]string, modules ...registry.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()

	logBuffer := &testutil.SafeBuffer{}
	cfg.LogLevel = "debug"
	testApp := NewApp(logBuffer, cfg, hcl.NewLoaderWithEnv(env), modules...)

	t.Cleanup(func() {
		if os.Getenv("DUNGEONJOB_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
