package ports

import "context"

// ImageProber checks that an image reference can be resolved by its registry.
type ImageProber interface {
	ProbeImage(ctx context.Context, image string) error
}
