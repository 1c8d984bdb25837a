package docker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestProbeImage(t *testing.T) {
	errUnknown := errors.New("manifest unknown")
	var seen []string
	p := newProber(func(_ context.Context, image string) error {
		seen = append(seen, image)
		if image == "missing:latest" {
			return errUnknown
		}
		return nil
	}, 0, discardLogger())

	require.NoError(t, p.ProbeImage(context.Background(), "nginx"))

	err := p.ProbeImage(context.Background(), "missing:latest")
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnknown)
	assert.Equal(t, []string{"nginx", "missing:latest"}, seen)
	assert.Equal(t, defaultProbeTimeout, p.timeout)
}

func TestProbeImageTimeout(t *testing.T) {
	p := newProber(func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}, 10*time.Millisecond, discardLogger())

	err := p.ProbeImage(context.Background(), "slow/registry")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
