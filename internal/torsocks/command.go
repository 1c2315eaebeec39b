package torsocks

import (
	"fmt"
	"os"

	"github.com/nao1215/exitprobe/internal/tor"
)

// Environment variables read by the torsocks wrapper.
const (
	// confFileEnv points torsocks at its configuration file.
	confFileEnv = "TORSOCKS_CONF_FILE"

	// logLevelEnv sets the torsocks log verbosity.
	logLevelEnv = "TORSOCKS_LOG_LEVEL"

	// wrapperLogLevel is the verbosity at which torsocks discloses the
	// source port of every redirected connection. The correlation
	// machinery depends on those disclosure lines, so this is fixed.
	wrapperLogLevel = "5"
)

// DefaultWrapper is the torsocks executable resolved via PATH.
const DefaultWrapper = "torsocks"

// wrapCommand prepends the wrapper executable to the argument vector.
func wrapCommand(wrapper string, argv []string) []string {
	wrapped := make([]string, 0, len(argv)+1)
	wrapped = append(wrapped, wrapper)
	return append(wrapped, argv...)
}

// proxyEnv returns the environment assignments the child needs on top of
// the inherited environment. They are passed to the spawned process only,
// never written into this process's environment.
func proxyEnv(confPath string) []string {
	return []string{
		confFileEnv + "=" + confPath,
		logLevelEnv + "=" + wrapperLogLevel,
	}
}

// writeProxyConf creates a temporary torsocks configuration file pointing
// at the given SOCKS listener. The caller removes the file when the
// invocation finishes.
func writeProxyConf(endpoint tor.Endpoint) (string, error) {
	f, err := os.CreateTemp("", "torsocks_")
	if err != nil {
		return "", fmt.Errorf("failed to create torsocks config: %w", err)
	}

	conf := fmt.Sprintf("TorAddress %s\nTorPort %d\n", endpoint.Host, endpoint.Port)
	if _, err := f.WriteString(conf); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write torsocks config: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to close torsocks config: %w", err)
	}

	return f.Name(), nil
}
