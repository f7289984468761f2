package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staticnet/pkg/ethernet"
	"staticnet/pkg/ipstack"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snetd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
interface: eth0
mac: "02:00:00:00:00:01"
address: 10.0.0.2
broadcast: 10.0.0.255
gateway: 10.0.0.1
log_level: debug
ssh_user: operator
ssh_password: hunter2
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "eth0", c.Interface)
	assert.Equal(t, ethernet.MACAddr{0x02, 0, 0, 0, 0, 0x01}, c.MAC)
	assert.Equal(t, ipstack.Address{10, 0, 0, 2}, c.IP.Address)
	assert.Equal(t, ipstack.Address{10, 0, 0, 255}, c.IP.Broadcast)
	assert.Equal(t, ipstack.Address{10, 0, 0, 1}, c.IP.Gateway)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, "operator", c.SSHUser)
	assert.Equal(t, "hunter2", c.SSHPassword)
}

func TestLoadDefaultLogLevel(t *testing.T) {
	path := writeConfig(t, `
interface: eth0
mac: "02:00:00:00:00:01"
address: 10.0.0.2
broadcast: 10.0.0.255
gateway: 10.0.0.1
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoadRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"missing interface": `
mac: "02:00:00:00:00:01"
address: 10.0.0.2
broadcast: 10.0.0.255
gateway: 10.0.0.1
`,
		"bad mac": `
interface: eth0
mac: "not-a-mac"
address: 10.0.0.2
broadcast: 10.0.0.255
gateway: 10.0.0.1
`,
		"bad address": `
interface: eth0
mac: "02:00:00:00:00:01"
address: 999.0.0.2
broadcast: 10.0.0.255
gateway: 10.0.0.1
`,
		"ipv6 address": `
interface: eth0
mac: "02:00:00:00:00:01"
address: "::1"
broadcast: 10.0.0.255
gateway: 10.0.0.1
`,
	}

	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
