package pipeline

import (
	"encoding/base64"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveClip(t *testing.T) {
	root := t.TempDir()
	writeClip(t, filepath.Join(root, "vid1"), "vid1-Scene-004.mp4")
	writeClip(t, filepath.Join(root, "vid1"), "renamed-Scene-005.mp4")
	writeClip(t, filepath.Join(root, "vid1"), "clip_12.mp4")
	writeClip(t, root, "vid2-Scene-001.mp4")

	tests := []struct {
		name string
		unit string
		ref  int
		want string
	}{
		{"exact name in unit dir", "vid1", 4, filepath.Join(root, "vid1", "vid1-Scene-004.mp4")},
		{"scene wildcard", "vid1", 5, filepath.Join(root, "vid1", "renamed-Scene-005.mp4")},
		{"number suffix wildcard", "vid1", 12, filepath.Join(root, "vid1", "clip_12.mp4")},
		{"flat root layout", "vid2", 1, filepath.Join(root, "vid2-Scene-001.mp4")},
		{"missing", "vid1", 99, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveClip(root, tt.unit, tt.ref)
			if ok != (tt.want != "") {
				t.Fatalf("ResolveClip ok = %v, want %v", ok, tt.want != "")
			}
			if got != tt.want {
				t.Errorf("ResolveClip = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeClip(t *testing.T) {
	dir := t.TempDir()
	writeClip(t, dir, "a.mp4")

	url, err := EncodeClip(filepath.Join(dir, "a.mp4"))
	if err != nil {
		t.Fatalf("EncodeClip: %v", err)
	}
	const prefix = "data:video/mp4;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("missing data URL prefix: %q", url)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(data) != "fake mp4 a.mp4" {
		t.Errorf("payload = %q", data)
	}

	if _, err := EncodeClip(filepath.Join(dir, "missing.mp4")); err == nil {
		t.Error("expected error for missing clip")
	}
}
