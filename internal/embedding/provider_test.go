package embedding

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeProvider struct {
	closed bool
}

func (f *fakeProvider) EmbedImage(context.Context, image.Image) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (f *fakeProvider) EmbedText(context.Context, string) ([]float32, error) {
	return []float32{0, 1}, nil
}

func (f *fakeProvider) Dim() int { return 2 }

func (f *fakeProvider) Close() error {
	f.closed = true
	return nil
}

func TestLazyConstructsExactlyOnce(t *testing.T) {
	var calls atomic.Int32
	lazy := NewLazy(func() (Provider, error) {
		calls.Add(1)
		return &fakeProvider{}, nil
	})

	var wg sync.WaitGroup
	providers := make([]Provider, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			p, err := lazy.Get()
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			providers[slot] = p
		}(i)
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one construction, got %d", got)
	}
	for _, p := range providers {
		if p != providers[0] {
			t.Fatal("expected every caller to receive the same provider")
		}
	}
}

func TestLazyFailureIsSticky(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("model missing")
	lazy := NewLazy(func() (Provider, error) {
		calls.Add(1)
		return nil, boom
	})

	for i := 0; i < 3; i++ {
		if _, err := lazy.Get(); !errors.Is(err, boom) {
			t.Fatalf("expected construction error, got %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("failed construction must not be retried, got %d calls", got)
	}
}

func TestLazyCloseWithoutConstruction(t *testing.T) {
	lazy := NewLazy(func() (Provider, error) {
		t.Fatal("factory must not run for an unused provider")
		return nil, nil
	})
	if err := lazy.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestLazyCloseReleasesProvider(t *testing.T) {
	fake := &fakeProvider{}
	lazy := NewLazy(func() (Provider, error) { return fake, nil })
	if _, err := lazy.Get(); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := lazy.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !fake.closed {
		t.Fatal("expected provider to be closed")
	}
}

func TestLazyWithoutFactory(t *testing.T) {
	lazy := NewLazy(nil)
	if _, err := lazy.Get(); err == nil {
		t.Fatal("expected error when no factory is configured")
	}
}
