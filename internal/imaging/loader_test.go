package imaging

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// writeTestImage encodes img as PNG into dir and returns its path.
func writeTestImage(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

func TestNewFrameCache(t *testing.T) {
	cache := NewFrameCache()
	if cache == nil {
		t.Fatal("NewFrameCache returned nil")
	}
	if cache.frames == nil {
		t.Fatal("NewFrameCache did not initialize frames map")
	}
}

func TestFrameCache_Load(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), "frame.png", createPatternImage(100, 80))
	cache := NewFrameCache()

	buf, err := cache.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if buf.Width() != 100 || buf.Height() != 80 {
		t.Errorf("dimensions: got %dx%d, want 100x80", buf.Width(), buf.Height())
	}

	again, err := cache.Load(path)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if again != buf {
		t.Error("second Load of an unchanged file should return the cached buffer")
	}
}

func TestFrameCache_ReloadsChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImage(t, dir, "frame.png", createInMemoryImage(10, 10, color.Black))
	cache := NewFrameCache()

	first, err := cache.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	writeTestImage(t, dir, "frame.png", createInMemoryImage(20, 10, color.White))
	// Make sure the modification time moves even on coarse filesystems
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	second, err := cache.Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if second == first {
		t.Fatal("changed file should be decoded again")
	}
	if second.Width() != 20 {
		t.Errorf("reloaded width: got %d, want 20", second.Width())
	}
}

func TestFrameCache_Errors(t *testing.T) {
	dir := t.TempDir()
	notImage := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notImage, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.png")},
		{"not an image", notImage},
	}

	cache := NewFrameCache()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := cache.Load(tt.path); err == nil {
				t.Error("Load should fail")
			}
		})
	}
}

func TestFrameCache_EvictAndClear(t *testing.T) {
	dir := t.TempDir()
	a := writeTestImage(t, dir, "a.png", createInMemoryImage(5, 5, color.White))
	b := writeTestImage(t, dir, "b.png", createInMemoryImage(5, 5, color.Black))

	cache := NewFrameCache()
	for _, p := range []string{a, b} {
		if _, err := cache.Load(p); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
	}

	cache.Evict(a)
	if _, ok := cache.frames[a]; ok {
		t.Error("Evict should remove the entry")
	}
	if _, ok := cache.frames[b]; !ok {
		t.Error("Evict should keep other entries")
	}

	cache.Clear()
	if len(cache.frames) != 0 {
		t.Errorf("Clear: %d entries remain", len(cache.frames))
	}
}

func TestFrameCache_Concurrent(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), "frame.png", createPatternImage(50, 50))
	cache := NewFrameCache()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Load(path); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Load failed: %v", err)
	}
}

func TestLoadFrameInfo(t *testing.T) {
	dir := t.TempDir()
	pngPath := writeTestImage(t, dir, "frame.png", createPatternImage(30, 20))

	jpgPath := filepath.Join(dir, "frame.jpg")
	f, err := os.Create(jpgPath)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	if err := jpeg.Encode(f, createPatternImage(30, 20), nil); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}
	f.Close()

	tests := []struct {
		path   string
		format string
	}{
		{pngPath, "png"},
		{jpgPath, "jpeg"},
	}

	cache := NewFrameCache()
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			info, err := LoadFrameInfo(cache, tt.path)
			if err != nil {
				t.Fatalf("LoadFrameInfo failed: %v", err)
			}
			if info.Width != 30 || info.Height != 20 {
				t.Errorf("dimensions: got %dx%d, want 30x20", info.Width, info.Height)
			}
			if info.Format != tt.format {
				t.Errorf("Format: got %s, want %s", info.Format, tt.format)
			}
			if info.FileSizeBytes <= 0 {
				t.Errorf("FileSizeBytes: got %d, want > 0", info.FileSizeBytes)
			}
		})
	}
}
