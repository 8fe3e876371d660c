package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"arrayvis/pkg/config"
	"arrayvis/pkg/pipeline"
	"arrayvis/pkg/vrender"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "arrayvis.yaml", "YAML configuration file (defaults are used when missing)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	input := flag.String("input", "", "Arrayfile holding the cube (default: synthesize one)")
	structure := flag.String("structure", "", "Structure holding the cube inside the arrayfile")
	mmap := flag.Bool("mmap", false, "Memory map the arrayfile")
	size := flag.Int("size", 0, "Edge length of the synthetic cube")
	threads := flag.Int("threads", 0, "Number of worker threads (default: from config)")
	outputDir := flag.String("output", "", "Directory for rendered images")
	shader := flag.String("shader", "", "Shader name: "+strings.Join(vrender.ShaderNames(), ", "))
	projection := flag.String("projection", "", "Projection: parallel or perspective")
	width := flag.Int("width", 0, "Image width in pixels")
	height := flag.Int("height", 0, "Image height in pixels")
	frames := flag.Int("frames", 0, "Number of frames rendered while spinning the eye")
	stereo := flag.Bool("stereo", false, "Render left and right eye images")
	incremental := flag.Bool("incremental", false, "Build caches through the background scheduler")
	smooth := flag.Bool("smooth", false, "Use bilinear voxel sampling")
	slices := flag.Bool("slices", false, "Save every z slice of the cube")
	verbose := flag.Bool("verbose", false, "Print diagnostics")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the configuration file
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["input"] {
		cfg.Input.ArrayFile = *input
	}
	if set["structure"] {
		cfg.Input.Structure = *structure
	}
	if set["mmap"] {
		cfg.Input.Mmap = *mmap
	}
	if set["size"] {
		cfg.Input.SyntheticSize = *size
	}
	if set["threads"] {
		cfg.Processing.NumThreads = *threads
	}
	if set["output"] {
		cfg.Output.Dir = *outputDir
	}
	if set["shader"] {
		cfg.Render.Shader = *shader
	}
	if set["projection"] {
		cfg.Render.Projection = *projection
	}
	if set["width"] {
		cfg.Render.Width = *width
	}
	if set["height"] {
		cfg.Render.Height = *height
	}
	if set["frames"] {
		cfg.Render.Frames = *frames
	}
	if set["stereo"] {
		cfg.Render.Stereo = *stereo
	}
	if set["incremental"] {
		cfg.Render.Incremental = *incremental
	}
	if set["smooth"] {
		cfg.Render.SmoothCache = *smooth
	}
	if set["slices"] {
		cfg.Output.SaveSlices = *slices
	}
	if set["verbose"] {
		cfg.Output.Verbose = *verbose
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	fmt.Println("================================")
	fmt.Println("ARRAYVIS: STRIDED ARRAY VOLUME RENDERER")
	fmt.Println("================================")

	renderer := pipeline.NewRenderer(cfg)
	startTime := time.Now()
	if err := renderer.Process(); err != nil {
		log.Fatalf("Rendering failed: %v", err)
	}
	processingTime := time.Since(startTime)

	metrics := renderer.GetMetrics()
	fmt.Printf("\nRendering completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Images saved to: %s\n\n", cfg.Output.Dir)

	fmt.Printf("Cube value range: [%g, %g], mode bin %d\n", metrics.CubeMin, metrics.CubeMax, metrics.Mode)
	if cfg.Render.Incremental {
		fmt.Printf("Background cache steps: %d\n", metrics.CacheSteps)
	}
	fmt.Println("Frame statistics:")
	for _, f := range metrics.Frames {
		fmt.Printf("- %s: %d hits, range [%g, %g], mean %.3f, std dev %.3f\n",
			f.Name, f.Hits, f.Min, f.Max, f.Mean, f.StdDev)
	}
	fmt.Printf("Mean intensity over all frames: %.3f\n", metrics.MeanIntensity)
	fmt.Printf("Used %d worker threads\n", cfg.Processing.NumThreads)
}
