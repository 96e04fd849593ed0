// Package device collects a short description of the host for the first
// prompt of a chat: distribution, kernel, memory and CPU.
package device

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const Unknown = "Unknown device info"

const probeTimeout = 5 * time.Second

// Runner executes a probe command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

type Collector struct {
	OSRelease string
	CPUInfo   string
	Run       Runner
	Logger    logrus.FieldLogger
}

func NewCollector(logger logrus.FieldLogger) *Collector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Collector{
		OSRelease: "/etc/os-release",
		CPUInfo:   "/proc/cpuinfo",
		Run:       execRunner,
		Logger:    logger.WithField("component", "device"),
	}
}

// Collect never fails; probes that error are left out and an empty result
// becomes Unknown.
func (c *Collector) Collect(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	probes := []func(context.Context) (string, error){
		c.distro,
		c.kernel,
		c.memory,
		c.cpu,
	}
	lines := make([]string, len(probes))

	var g errgroup.Group
	for i, probe := range probes {
		g.Go(func() error {
			line, err := probe(ctx)
			if err != nil {
				c.Logger.WithError(err).Debug("device probe failed")
				return nil
			}
			lines[i] = line
			return nil
		})
	}
	_ = g.Wait()

	var b strings.Builder
	for _, line := range lines {
		if line != "" {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	if b.Len() == 0 {
		return Unknown
	}
	return b.String()
}

func (c *Collector) distro(context.Context) (string, error) {
	release, err := godotenv.Read(c.OSRelease)
	if err != nil {
		return "", err
	}
	if name := release["PRETTY_NAME"]; name != "" {
		return "Distro: " + name, nil
	}
	return "", nil
}

func (c *Collector) kernel(ctx context.Context) (string, error) {
	out, err := c.Run(ctx, "uname", "-srvm")
	if err != nil {
		return "", err
	}
	return "Kernel: " + strings.TrimSpace(string(out)), nil
}

func (c *Collector) memory(ctx context.Context) (string, error) {
	out, err := c.Run(ctx, "free", "-h")
	if err != nil {
		return "", err
	}
	for line := range strings.Lines(string(out)) {
		if strings.HasPrefix(line, "Mem:") {
			return "Memory: " + strings.TrimSpace(line), nil
		}
	}
	return "", nil
}

func (c *Collector) cpu(context.Context) (string, error) {
	f, err := os.Open(c.CPUInfo)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if ok && strings.TrimSpace(key) == "model name" {
			return "CPU: " + strings.TrimSpace(value), nil
		}
	}
	return "", sc.Err()
}
