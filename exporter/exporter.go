// Package exporter writes the merged scene to an archive file the game
// engine can load: a glb binary scene or a zipped fbx.
package exporter

import (
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/maxportland/metalman/config"
	"github.com/maxportland/metalman/scene"
)

type Exporter interface {
	Extension() string
	Export(sc *scene.Scene, path string, profile config.ExportProfile) error
}

func ForFormat(format string) (Exporter, error) {
	switch format {
	case "glb":
		return &GLTFExporter{}, nil
	case "fbz":
		return &FBXExporter{}, nil
	}
	return nil, errors.Errorf("Unknown archive format %q", format)
}

// ExportFile writes the scene with the configured parameter profile and,
// when that attempt fails, retries once with the minimal profile. Engine
// importers disagree on the acceptable parameter set, minimal is the
// common denominator.
func ExportFile(e Exporter, sc *scene.Scene, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return errors.Wrapf(err, "Unable to create output directory for %q", path)
	}

	profile := config.GetExportProfile()
	if profile == config.ProfileAuto {
		profile = config.ProfileFull
	}

	err := e.Export(sc, path, profile)
	if err != nil && profile != config.ProfileMinimal {
		log.Printf("[exporter] Retrying %q with minimal parameter set: %v", filepath.Base(path), err)
		err = e.Export(sc, path, config.ProfileMinimal)
	}
	return err
}
