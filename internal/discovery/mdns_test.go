package discovery

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/watercolumn/internal/version"
)

func TestNewAdvertiser(t *testing.T) {
	a := NewAdvertiser("bridge", 8080, "knots")
	assert.Equal(t, "bridge", a.Instance())
	assert.Equal(t, []string{
		"version=" + version.Version,
		"path=/api/snapshot",
		"ws=/ws",
		"units=knots",
	}, a.txt)
}

func TestNewAdvertiserDefaultsToHostname(t *testing.T) {
	host, err := os.Hostname()
	if err != nil || host == "" {
		t.Skip("no hostname")
	}
	assert.Equal(t, host+"-watercolumn", NewAdvertiser("", 8080, "mps").Instance())
}

func TestStopWithoutStart(t *testing.T) {
	a := NewAdvertiser("bridge", 8080, "mps")
	a.Stop()
	assert.Nil(t, a.server)
}
