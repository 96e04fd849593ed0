package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const freeOutput = `               total        used        free      shared  buff/cache   available
Mem:            15Gi       4.1Gi       8.0Gi       512Mi       3.4Gi        11Gi
Swap:          4.0Gi          0B       4.0Gi
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestCollector(t *testing.T, run Runner) *Collector {
	t.Helper()
	logger, _ := test.NewNullLogger()
	c := NewCollector(logger)
	c.OSRelease = writeFile(t, "os-release", "NAME=Fedora\nPRETTY_NAME=\"Fedora Linux 42 (Workstation Edition)\"\nID=fedora\n")
	c.CPUInfo = writeFile(t, "cpuinfo", "processor\t: 0\nvendor_id\t: GenuineIntel\nmodel name\t: Intel(R) Core(TM) i7-1165G7 @ 2.80GHz\n\nprocessor\t: 1\nmodel name\t: Intel(R) Core(TM) i7-1165G7 @ 2.80GHz\n")
	c.Run = run
	return c
}

func TestCollect(t *testing.T) {
	c := newTestCollector(t, func(_ context.Context, name string, args ...string) ([]byte, error) {
		switch name {
		case "uname":
			assert.Equal(t, []string{"-srvm"}, args)
			return []byte("Linux 6.9.0 #1 SMP x86_64\n"), nil
		case "free":
			return []byte(freeOutput), nil
		}
		return nil, errors.New("unexpected")
	})

	got := c.Collect(context.Background())

	require.Equal(t, "Distro: Fedora Linux 42 (Workstation Edition)\n"+
		"Kernel: Linux 6.9.0 #1 SMP x86_64\n"+
		"Memory: Mem:            15Gi       4.1Gi       8.0Gi       512Mi       3.4Gi        11Gi\n"+
		"CPU: Intel(R) Core(TM) i7-1165G7 @ 2.80GHz\n", got)
}

func TestCollectSkipsFailedProbes(t *testing.T) {
	c := newTestCollector(t, func(_ context.Context, name string, _ ...string) ([]byte, error) {
		if name == "free" {
			return []byte(freeOutput), nil
		}
		return nil, errors.New("not installed")
	})
	c.OSRelease = filepath.Join(t.TempDir(), "missing")

	got := c.Collect(context.Background())

	require.Equal(t, "Memory: Mem:            15Gi       4.1Gi       8.0Gi       512Mi       3.4Gi        11Gi\n"+
		"CPU: Intel(R) Core(TM) i7-1165G7 @ 2.80GHz\n", got)
}

func TestCollectFallsBackToUnknown(t *testing.T) {
	c := newTestCollector(t, func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("no")
	})
	c.OSRelease = filepath.Join(t.TempDir(), "missing")
	c.CPUInfo = filepath.Join(t.TempDir(), "missing")

	require.Equal(t, Unknown, c.Collect(context.Background()))
}
