package config

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Category describes one batch of animation sources (player, enemy,
// vendor, ...). BaseMesh may be empty: then every source file is expected
// to carry its own rigged model together with the animation.
type Category struct {
	Name            string `yaml:"name"`
	SourceDir       string `yaml:"source_dir"`
	OutputDir       string `yaml:"output_dir"`
	BaseMesh        string `yaml:"base_mesh"`
	StripRootMotion bool   `yaml:"strip_root_motion"`
	SkipExisting    bool   `yaml:"skip_existing"`
	FoldUnderscores bool   `yaml:"fold_underscores"`
	Format          string `yaml:"format"`
}

type Pipeline struct {
	FPS        int        `yaml:"fps"`
	Profile    string     `yaml:"profile"`
	Categories []Category `yaml:"categories"`
}

func LoadPipeline(path string) (*Pipeline, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read pipeline config %q", path)
	}

	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrapf(err, "Unable to parse pipeline config %q", path)
	}

	if p.FPS == 0 {
		p.FPS = 30
	}
	for i := range p.Categories {
		c := &p.Categories[i]
		if c.Name == "" {
			return nil, errors.Errorf("Category %d without name", i)
		}
		if c.SourceDir == "" {
			return nil, errors.Errorf("Category %q without source_dir", c.Name)
		}
		if c.OutputDir == "" {
			return nil, errors.Errorf("Category %q without output_dir", c.Name)
		}
		if c.Format == "" {
			c.Format = "glb"
		}
		if c.Format != "glb" && c.Format != "fbz" {
			return nil, errors.Errorf("Category %q: unknown format %q", c.Name, c.Format)
		}
	}

	profile, err := ParseExportProfile(p.Profile)
	if err != nil {
		return nil, err
	}
	SetExportProfile(profile)

	return &p, nil
}

func ParseExportProfile(name string) (ExportProfile, error) {
	switch name {
	case "", "auto":
		return ProfileAuto, nil
	case "full":
		return ProfileFull, nil
	case "compat":
		return ProfileCompat, nil
	case "minimal":
		return ProfileMinimal, nil
	}
	return ProfileAuto, errors.Errorf("Unknown export profile %q", name)
}

func (p *Pipeline) Category(name string) *Category {
	for i := range p.Categories {
		if p.Categories[i].Name == name {
			return &p.Categories[i]
		}
	}
	return nil
}
