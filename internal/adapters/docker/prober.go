package docker

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/client"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-sandbox/internal/core/ports"
)

const defaultProbeTimeout = 15 * time.Second

// Prober implements ports.ImageProber by asking the Docker daemon to resolve
// the image manifest from its registry. Nothing is pulled.
type Prober struct {
	inspect func(ctx context.Context, image string) error
	timeout time.Duration
	log     logrus.FieldLogger
}

var _ ports.ImageProber = (*Prober)(nil)

// NewProber creates a prober from the Docker environment (DOCKER_HOST etc.).
func NewProber(timeout time.Duration, log logrus.FieldLogger) (*Prober, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newProber(func(ctx context.Context, image string) error {
		_, err := cli.DistributionInspect(ctx, image, "")
		return err
	}, timeout, log), nil
}

func newProber(inspect func(ctx context.Context, image string) error, timeout time.Duration, log logrus.FieldLogger) *Prober {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Prober{
		inspect: inspect,
		timeout: timeout,
		log:     log.WithField("component", "docker.prober"),
	}
}

// ProbeImage fails when the registry cannot resolve image.
func (p *Prober) ProbeImage(ctx context.Context, image string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.inspect(ctx, image); err != nil {
		return fmt.Errorf("failed to resolve image %q: %w", image, err)
	}
	p.log.WithField("image", image).Debug("Image resolved")
	return nil
}
