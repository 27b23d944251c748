package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/memelab/memeforge/internal/domain"
)

// fakeStorage is an in-memory ObjectStorage for render and seed tests.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) EnsureBucket(ctx context.Context) error { return nil }

func (f *fakeStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("not found: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) GetURL(key string) string {
	return "http://storage.test/" + key
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeStorage) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func writeTestTemplate(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 128, 96))
	for y := 0; y < 96; y++ {
		for x := 0; x < 128; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	path := filepath.Join(dir, "template.png")
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRenderUploadsScaledPNG(t *testing.T) {
	store := newFakeStorage()
	svc, err := NewRenderService(store)
	if err != nil {
		t.Fatal(err)
	}

	template := &domain.Template{
		TemplateID: "t1",
		Name:       "Calm Dog",
		Format:     domain.FormatSingle,
		ImagePath:  writeTestTemplate(t, t.TempDir()),
	}

	spec := &domain.RenderSpec{Size: 512, Format: "png"}
	result, err := svc.Render(context.Background(), template, []string{"everything is on fire"}, spec, "trace-1", "cand-1")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	wantKey := "memes/trace-1/cand-1.png"
	if result.StorageKey != wantKey {
		t.Errorf("storage key = %q, want %q", result.StorageKey, wantKey)
	}
	if result.ImageURL != "http://storage.test/"+wantKey {
		t.Errorf("image URL = %q", result.ImageURL)
	}
	if !strings.Contains(result.AltText, "Calm Dog") || !strings.Contains(result.AltText, "everything is on fire") {
		t.Errorf("alt text = %q", result.AltText)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}

	data, ok := store.objects[wantKey]
	if !ok {
		t.Fatal("rendered object not uploaded")
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("uploaded object is not a PNG: %v", err)
	}
	if got := decoded.Bounds().Dx(); got != 512 {
		t.Errorf("rendered width = %d, want 512", got)
	}
}

func TestRenderWebpFallsBackToPNG(t *testing.T) {
	store := newFakeStorage()
	svc, err := NewRenderService(store)
	if err != nil {
		t.Fatal(err)
	}

	template := &domain.Template{
		TemplateID: "t1",
		Name:       "Calm Dog",
		Format:     domain.FormatSingle,
		ImagePath:  writeTestTemplate(t, t.TempDir()),
	}

	spec := &domain.RenderSpec{Size: 512, Format: "webp"}
	result, err := svc.Render(context.Background(), template, []string{"fine"}, spec, "trace-2", "cand-2")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if result.StorageKey != "memes/trace-2/cand-2.png" {
		t.Errorf("storage key = %q, want png extension", result.StorageKey)
	}
	if len(result.Warnings) == 0 || !strings.Contains(result.Warnings[0], "webp") {
		t.Errorf("expected webp fallback warning, got %v", result.Warnings)
	}
}

func TestRenderMissingImageSource(t *testing.T) {
	store := newFakeStorage()
	svc, err := NewRenderService(store)
	if err != nil {
		t.Fatal(err)
	}

	template := &domain.Template{TemplateID: "t1", Name: "X", Format: domain.FormatSingle}
	if _, err := svc.Render(context.Background(), template, []string{"a"}, &domain.RenderSpec{Size: 512, Format: "png"}, "t", "c"); err == nil {
		t.Fatal("expected error for template without image source")
	}
}

func TestCaptionBands(t *testing.T) {
	tests := []struct {
		name      string
		format    domain.TemplateFormat
		captions  []string
		wantCount int
	}{
		{"single bottom band", domain.FormatSingle, []string{"a"}, 1},
		{"caption-only top band", domain.FormatCaptionOnly, []string{"a"}, 1},
		{"two panels", domain.FormatTwoPanel, []string{"a", "b"}, 2},
		{"four panels", domain.FormatFourPanel, []string{"a", "b", "c", "d"}, 4},
		{"no captions", domain.FormatSingle, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bands := captionBands(tt.format, 800, tt.captions)
			if len(bands) != tt.wantCount {
				t.Fatalf("band count = %d, want %d", len(bands), tt.wantCount)
			}
			if tt.format == domain.FormatSingle && len(bands) > 0 && !bands[0].anchorBottom {
				t.Error("single format band should anchor to the bottom")
			}
			if tt.format == domain.FormatTwoPanel && len(bands) == 2 {
				if bands[0].panelTop != 0 || bands[1].panelTop != 400 {
					t.Errorf("panel tops = %d, %d", bands[0].panelTop, bands[1].panelTop)
				}
			}
		})
	}
}
