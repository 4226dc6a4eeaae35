package pipeline

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/hopqa/internal/artifact"
	"github.com/rotisserie/eris"
)

// ResolveClip finds the clip file for one evidence segment. Clips live in
// <root>/<unit>/ when that directory exists, otherwise directly in root.
// The exact "<unit>-Scene-NNN.mp4" name wins over the wildcard forms.
func ResolveClip(root, unit string, ref int) (string, bool) {
	dir := filepath.Join(root, unit)
	if !artifact.IsDir(dir) {
		dir = root
	}

	scene := fmt.Sprintf("%03d", ref)
	exact := filepath.Join(dir, fmt.Sprintf("%s-Scene-%s.mp4", unit, scene))
	if artifact.Exists(exact) {
		return exact, true
	}

	patterns := []string{
		filepath.Join(dir, "*-Scene-"+scene+".mp4"),
		filepath.Join(dir, fmt.Sprintf("*%d.mp4", ref)),
	}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err == nil && len(matches) > 0 {
			return matches[0], true
		}
	}
	return "", false
}

// EncodeClip reads a clip into a base64 data URL
func EncodeClip(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "read clip %s", path)
	}
	return "data:video/mp4;base64," + base64.StdEncoding.EncodeToString(data), nil
}
