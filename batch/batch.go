// Package batch drives the fbx-to-archive conversion over a directory of
// animation files, one exported scene per clip. Items are isolated by a
// full scene reset, not by separate processes.
package batch

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/maxportland/metalman/config"
	"github.com/maxportland/metalman/exporter"
	"github.com/maxportland/metalman/fbx"
	"github.com/maxportland/metalman/scene"
	"github.com/maxportland/metalman/slug"
	"github.com/maxportland/metalman/status"
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	}
	return "unknown"
}

// RunStats counts per-item outcomes across a batch run. Succeeded,
// Failed and Skipped always sum to Total.
type RunStats struct {
	Total     int
	Current   int
	Succeeded int
	Failed    int
	Skipped   int
}

// Runner converts every animation file of one category. The import and
// export functions default to the real fbx reader and archive writers.
type Runner struct {
	Category *config.Category
	FPS      int

	Import     func(sc *scene.Scene, path string) error
	ExportFile func(e exporter.Exporter, sc *scene.Scene, path string) error
}

func NewRunner(cat *config.Category, fps int) *Runner {
	return &Runner{
		Category:   cat,
		FPS:        fps,
		Import:     fbx.Import,
		ExportFile: exporter.ExportFile,
	}
}

// Discover lists the animation fbx files of the source directory, sorted
// for a deterministic processing order. The base mesh is not an item.
func (r *Runner) Discover() ([]string, error) {
	entries, err := os.ReadDir(r.Category.SourceDir)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read source directory %q", r.Category.SourceDir)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), ".fbx") {
			continue
		}
		if strings.EqualFold(entry.Name(), r.Category.BaseMesh) {
			continue
		}
		files = append(files, filepath.Join(r.Category.SourceDir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Run processes every discovered file. Missing source directory or base
// mesh abort the run; everything else fails only the current item.
func (r *Runner) Run() (RunStats, error) {
	var stats RunStats

	basePath := filepath.Join(r.Category.SourceDir, r.Category.BaseMesh)
	if _, err := os.Stat(basePath); err != nil {
		return stats, errors.Wrapf(err, "Base mesh %q not found", basePath)
	}

	files, err := r.Discover()
	if err != nil {
		return stats, err
	}
	stats.Total = len(files)

	e, err := exporter.ForFormat(r.Category.Format)
	if err != nil {
		return stats, err
	}

	log.Printf("[batch] Category %q: %d animation files in %q",
		r.Category.Name, stats.Total, r.Category.SourceDir)

	sc := scene.NewScene(r.FPS)
	for i, path := range files {
		stats.Current = i + 1
		status.Progress(filepath.Base(path), float32(i)/float32(stats.Total))

		outcome := r.processItem(sc, e, basePath, path)
		switch outcome {
		case OutcomeSuccess:
			stats.Succeeded++
		case OutcomeFailed:
			stats.Failed++
		case OutcomeSkipped:
			stats.Skipped++
		}
	}

	log.Printf("[batch] Category %q done: %d success, %d failed, %d skipped",
		r.Category.Name, stats.Succeeded, stats.Failed, stats.Skipped)
	status.Progress("done", 1)
	return stats, nil
}

// processItem runs the whole merge-strip-export sequence for one
// animation file. Panics are item failures, not batch failures.
func (r *Runner) processItem(sc *scene.Scene, e exporter.Exporter, basePath, animPath string) (outcome Outcome) {
	name := filepath.Base(animPath)
	log.Printf("[batch] Processing %q", name)

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[batch] Panic while processing %q: %v", name, rec)
			status.Error(name)
			outcome = OutcomeFailed
		}
	}()

	outPath := r.outputPath(animPath, e.Extension())
	if r.Category.SkipExisting {
		if _, err := os.Stat(outPath); err == nil {
			log.Printf("[batch] Skip (exists): %q", filepath.Base(outPath))
			return OutcomeSkipped
		}
	}

	sc.Reset()
	sc.RemoveAllActions()

	if err := r.Import(sc, basePath); err != nil {
		log.Printf("[batch] Unable to import base mesh for %q: %v", name, err)
		return OutcomeFailed
	}

	armObj := sc.FirstArmature()
	if armObj == nil {
		log.Printf("[batch] Base mesh carries no armature, failing %q", name)
		return OutcomeFailed
	}

	// a default clip on the base mesh would win the set difference below
	sc.SetAction(armObj, nil)

	baseMeshNames := sc.MeshObjectNames()
	baseObjectNames := make(map[string]struct{}, len(sc.Objects))
	for _, o := range sc.Objects {
		baseObjectNames[o.Name] = struct{}{}
	}

	before := sc.ActionNames()
	if err := r.Import(sc, animPath); err != nil {
		log.Printf("[batch] Unable to import %q: %v", name, err)
		return OutcomeFailed
	}

	action := r.findImportedClip(sc, before, baseObjectNames)
	if action == nil {
		log.Printf("[batch] Warning: no clip found in %q, exporting without animation", name)
	} else {
		start, end := action.FrameRange()
		if r.Category.StripRootMotion {
			scene.StripRootMotion(action)
		}
		sc.SetAction(armObj, action)
		sc.SetFrameRange(start, end)
	}

	r.removeImportedObjects(sc, baseMeshNames, baseObjectNames)

	if err := r.ExportFile(e, sc, outPath); err != nil {
		log.Printf("[batch] Export of %q failed: %v", name, err)
		status.Error(name)
		return OutcomeFailed
	}

	log.Printf("[batch] Exported %q", outPath)
	return OutcomeSuccess
}

// findImportedClip picks the first of the newly imported clip names, or
// falls back to scanning freshly imported armature objects for an active
// clip when the import reused existing names.
func (r *Runner) findImportedClip(sc *scene.Scene, before map[string]struct{},
	baseObjectNames map[string]struct{}) *scene.Action {
	if fresh := sc.NewActionNames(before); len(fresh) > 0 {
		return sc.ActionByName(fresh[0])
	}

	for _, o := range sc.Objects {
		if _, isBase := baseObjectNames[o.Name]; isBase {
			continue
		}
		if o.Type == scene.ObjectArmature && o.Action != nil {
			return o.Action
		}
	}
	return nil
}

// removeImportedObjects unlinks every mesh and armature object the
// animation import brought along, leaving the base mesh as sole owner of
// the new clip.
func (r *Runner) removeImportedObjects(sc *scene.Scene, baseMeshNames, baseObjectNames map[string]struct{}) {
	var doomed []string
	for _, o := range sc.Objects {
		switch o.Type {
		case scene.ObjectMesh:
			if _, ok := baseMeshNames[o.Name]; !ok {
				doomed = append(doomed, o.Name)
			}
		case scene.ObjectArmature:
			if _, ok := baseObjectNames[o.Name]; !ok {
				doomed = append(doomed, o.Name)
			}
		}
	}
	for _, name := range doomed {
		sc.UnlinkObject(name)
	}
	sc.PurgeOrphans()
}

func (r *Runner) outputPath(animPath, ext string) string {
	name := filepath.Base(animPath)
	var stem string
	if r.Category.FoldUnderscores {
		stem = slug.SanitizeFoldUnderscores(name)
	} else {
		stem = slug.Sanitize(name)
	}
	return filepath.Join(r.Category.OutputDir, stem+"."+ext)
}
