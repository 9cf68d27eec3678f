package main

import (
	"flag"
	"log"

	"github.com/maxportland/metalman/fbx"
	"github.com/maxportland/metalman/sampler"
	"github.com/maxportland/metalman/scene"
)

func main() {
	var inPath, outPath, outDir string
	var all bool
	var fps int
	flag.StringVar(&inPath, "i", "", "Path to rigged fbx file")
	flag.StringVar(&outPath, "o", "", "Output json path (default: <stem>_animation.json)")
	flag.StringVar(&outDir, "od", ".", "Output directory for -all")
	flag.BoolVar(&all, "all", false, "Sample every clip in the file, not just the active one")
	flag.IntVar(&fps, "fps", 30, "Playback rate")
	flag.Parse()

	if inPath == "" {
		log.Fatal("Provide path to a fbx file. Use --help if you stuck.")
	}

	sc := scene.NewScene(fps)
	if err := fbx.Import(sc, inPath); err != nil {
		log.Fatal(err)
	}

	if all {
		if err := sampler.ExportAll(sc, outDir); err != nil {
			log.Fatal(err)
		}
		return
	}

	if outPath == "" {
		outPath = sampler.DefaultOutputPath(inPath)
	}
	if err := sampler.Export(sc, outPath); err != nil {
		log.Fatal(err)
	}
}
