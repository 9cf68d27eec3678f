package main

import (
	"flag"
	"log"

	"github.com/maxportland/metalman/batch"
	"github.com/maxportland/metalman/config"
	"github.com/maxportland/metalman/utils"
	"github.com/maxportland/metalman/web"
)

func main() {
	var configPath, category, addr, profile, encoding string
	var dump bool
	flag.StringVar(&configPath, "config", "pipeline.yaml", "Path to pipeline config file")
	flag.StringVar(&category, "category", "", "Process only this category (empty for all)")
	flag.StringVar(&addr, "i", "", "Address of preview server (empty to not serve)")
	flag.StringVar(&profile, "profile", "", "Export parameter profile override: full, compat, minimal")
	flag.StringVar(&encoding, "encoding", "", "Charmap for non-utf8 strings in source files (empty for Windows 1252)")
	flag.BoolVar(&dump, "dump", false, "Dump the parsed config and exit")
	flag.Parse()

	if encoding != "" {
		if err := config.SetEncoding(encoding); err != nil {
			log.Fatalf("%v. Available: %v", err, config.ListEncodings())
		}
	}

	pipeline, err := config.LoadPipeline(configPath)
	if err != nil {
		log.Fatal(err)
	}

	if profile != "" {
		p, err := config.ParseExportProfile(profile)
		if err != nil {
			log.Fatal(err)
		}
		config.SetExportProfile(p)
	}

	if dump {
		utils.Dump(pipeline)
		return
	}

	categories := pipeline.Categories
	if len(categories) == 0 {
		log.Fatalf("Config %q defines no categories", configPath)
	}
	if category != "" {
		cat := pipeline.Category(category)
		if cat == nil {
			log.Fatalf("Unknown category %q", category)
		}
		categories = []config.Category{*cat}
	}

	if addr != "" {
		go func() {
			if err := web.StartServer(addr, categories[0].OutputDir); err != nil {
				log.Printf("[web] Server stopped: %v", err)
			}
		}()
	}

	var total batch.RunStats
	for i := range categories {
		r := batch.NewRunner(&categories[i], pipeline.FPS)
		stats, err := r.Run()
		if err != nil {
			log.Fatalf("Category %q: %v", categories[i].Name, err)
		}
		total.Total += stats.Total
		total.Succeeded += stats.Succeeded
		total.Failed += stats.Failed
		total.Skipped += stats.Skipped
	}

	log.Printf("Batch complete: %d files, %d success, %d failed, %d skipped",
		total.Total, total.Succeeded, total.Failed, total.Skipped)
}
