package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetFileExtension(t *testing.T) {
	tests := map[string]string{
		"photo.JPG":         "jpg",
		"path/to/photo.png": "png",
		"archive.tar.gz":    "gz",
		"noext":             "",
	}
	for input, expected := range tests {
		if got := GetFileExtension(input); got != expected {
			t.Errorf("GetFileExtension(%s) = %q, expected %q", input, got, expected)
		}
	}
}

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "c.png", "d.webp", "e.tiff"} {
		if !IsImageFile(name) {
			t.Errorf("%s should be an image", name)
		}
	}
	for _, name := range []string{"a.txt", "b.svg", "noext"} {
		if IsImageFile(name) {
			t.Errorf("%s should not be an image", name)
		}
	}
}

func TestGenerateOutputFilename(t *testing.T) {
	tests := []struct {
		input, dir, prefix, suffix, flag, format string
		expected                                 string
	}{
		{"photos/me.jpg", "out", "", "_avatar", "palestine", "png", filepath.Join("out", "me_palestine_avatar.png")},
		{"me.jpg", "out", "p_", "", "", "WEBP", filepath.Join("out", "p_me.webp")},
		{"me.jpg", "out", "", "", "", "", filepath.Join("out", "me.png")},
		{"https://example.com/img/me.jpg", "out", "", "", "japan", "png", filepath.Join("out", "me_japan.png")},
	}
	for _, tt := range tests {
		got := GenerateOutputFilename(tt.input, tt.dir, tt.prefix, tt.suffix, tt.flag, tt.format)
		if got != tt.expected {
			t.Errorf("GenerateOutputFilename(%s) = %s, expected %s", tt.input, got, tt.expected)
		}
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := EnsureDir(sub); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	for _, name := range []string{"a.jpg", "notes.txt", filepath.Join("sub", "b.png")} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := ListImageFiles(dir)
	if err != nil {
		t.Fatalf("ListImageFiles failed: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("Expected 2 images, got %v", files)
	}

	if !DirExists(sub) || DirExists(filepath.Join(dir, "a.jpg")) {
		t.Error("DirExists returned the wrong answer")
	}
	if !FileExists(filepath.Join(dir, "a.jpg")) || FileExists(sub) || FileExists(filepath.Join(dir, "nope")) {
		t.Error("FileExists returned the wrong answer")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"a/b:c":      "a_b_c",
		" .hidden. ": "hidden",
		"ok-name":    "ok-name",
	}
	for input, expected := range tests {
		if got := SanitizeFilename(input); got != expected {
			t.Errorf("SanitizeFilename(%q) = %q, expected %q", input, got, expected)
		}
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := map[int64]string{
		512:     "512 B",
		1023:    "1023 B",
		1536:    "1.5 KB",
		2048:    "2.0 KB",
		5 << 20: "5.0 MB",
		3 << 30: "3.0 GB",
		1 << 62: "4.0 EB",
	}
	for size, expected := range tests {
		if got := FormatFileSize(size); got != expected {
			t.Errorf("FormatFileSize(%d) = %s, expected %s", size, got, expected)
		}
	}
}
