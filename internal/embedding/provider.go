package embedding

import (
	"context"
	"errors"
	"image"
	"sync"

	"pixguard/internal/config"
)

// ImageEmbedder turns a decoded image into a dense vector.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, img image.Image) ([]float32, error)
}

// TextEmbedder turns a text snippet into a dense vector.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Provider bundles both towers behind one handle so model resources are
// loaded and released together.
type Provider interface {
	ImageEmbedder
	TextEmbedder
	Dim() int
	Close() error
}

// Factory constructs a Provider. Construction is deferred until first use
// because loading ONNX models is slow and some commands never need them.
type Factory func() (Provider, error)

// Lazy wraps a Factory so the provider is built exactly once, on first
// request, no matter how many goroutines ask for it concurrently.
type Lazy struct {
	once     sync.Once
	factory  Factory
	provider Provider
	err      error
}

// NewLazy returns a Lazy wrapper around factory.
func NewLazy(factory Factory) *Lazy {
	return &Lazy{factory: factory}
}

// Get returns the provider, constructing it on the first call. A failed
// construction is sticky: every later call reports the same error.
func (l *Lazy) Get() (Provider, error) {
	l.once.Do(func() {
		if l.factory == nil {
			l.err = errors.New("no embedding provider factory configured")
			return
		}
		l.provider, l.err = l.factory()
	})
	return l.provider, l.err
}

// Close releases the provider if it was ever constructed.
func (l *Lazy) Close() error {
	if l.provider != nil {
		return l.provider.Close()
	}
	return nil
}

// NewLazyFromConfig wires the configured model paths into a lazily
// constructed provider. The image tower always runs locally through ONNX
// Runtime; the text tower follows fingerprint.text_backend.
func NewLazyFromConfig(cfg *config.Config) *Lazy {
	return NewLazy(func() (Provider, error) {
		return newORTProvider(cfg)
	})
}
