// Package main is the trackdeck command line interface: import GPX files
// into the track store, run batch edits against them and export the result.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/dshills/trackdeck/internal/codec/gpx"
	"github.com/dshills/trackdeck/internal/config"
	"github.com/dshills/trackdeck/internal/engine"
	"github.com/dshills/trackdeck/internal/geo"
	"github.com/dshills/trackdeck/internal/plugin/reducer"
	"github.com/dshills/trackdeck/internal/selection"
	"github.com/dshills/trackdeck/internal/stats"
	"github.com/dshills/trackdeck/internal/store"
	"github.com/dshills/trackdeck/internal/track"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	var storeDir string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&storeDir, "store", "", "Persistence directory (overrides configuration)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = usage
	flag.Parse()
	defer glog.Flush()

	if showVersion {
		fmt.Printf("trackdeck %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		return 0
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load configuration: %v\n", err)
		return 1
	}
	if storeDir != "" {
		cfg.StoreDir = storeDir
	}

	var st store.Store
	if cfg.StoreDir != "" {
		fs, err := store.NewFileStore(cfg.StoreDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: open store: %v\n", err)
			return 1
		}
		st = fs
	} else {
		glog.Warning("no store directory configured, edits will not persist")
		st = store.NewMem()
	}

	e, err := engine.Open(st, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open engine: %v\n", err)
		return 1
	}
	defer e.Close()

	if err := dispatch(e, cfg, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintf(os.Stderr, "Trackdeck - GPS track batch editor\n\n")
	fmt.Fprintf(os.Stderr, "Usage: trackdeck [options] <command> [args]\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  import <file.gpx>...          Import GPX files\n")
	fmt.Fprintf(os.Stderr, "  export <dir> [id...]          Export documents as GPX\n")
	fmt.Fprintf(os.Stderr, "  list                          List documents with statistics\n")
	fmt.Fprintf(os.Stderr, "  stats <id>...                 Aggregate statistics for documents\n")
	fmt.Fprintf(os.Stderr, "  crop <id> <start> <end>       Keep only points start..end\n")
	fmt.Fprintf(os.Stderr, "  clean [-outside] [-waypoints] <id> <minLat> <minLon> <maxLat> <maxLon>\n")
	fmt.Fprintf(os.Stderr, "  reduce [-script f.lua] <id> <tolerance-m>\n")
	fmt.Fprintf(os.Stderr, "  merge [-blend] <id> <id>...   Merge documents into the first\n")
	fmt.Fprintf(os.Stderr, "  extract <id>                  Explode a document into parts\n")
	fmt.Fprintf(os.Stderr, "  split <id> <lat> <lon>        Split at the nearest point\n")
	fmt.Fprintf(os.Stderr, "  reverse <id>                  Reverse point order\n")
	fmt.Fprintf(os.Stderr, "  delete <id>...                Delete documents\n")
	fmt.Fprintf(os.Stderr, "  undo | redo                   Move through the edit history\n")
}

func dispatch(e *engine.Engine, cfg config.Config, cmd string, args []string) error {
	switch cmd {
	case "import":
		return cmdImport(e, args)
	case "export":
		return cmdExport(e, args)
	case "list":
		return cmdList(e)
	case "stats":
		return cmdStats(e, args)
	case "crop":
		return cmdCrop(e, args)
	case "clean":
		return cmdClean(e, args)
	case "reduce":
		return cmdReduce(e, args)
	case "merge":
		return cmdMerge(e, args)
	case "extract":
		return cmdExtract(e, args)
	case "split":
		return cmdSplit(e, cfg, args)
	case "reverse":
		return cmdReverse(e, args)
	case "delete":
		return cmdDelete(e, args)
	case "undo":
		return e.Undo()
	case "redo":
		return e.Redo()
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func cmdImport(e *engine.Engine, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("import: no files given")
	}
	var files []*track.File
	for _, path := range args {
		fh, err := os.Open(path)
		if err != nil {
			return err
		}
		f, err := gpx.Parse(fh)
		fh.Close()
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if f.Name == "" {
			f.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		files = append(files, f)
	}
	ids, err := e.AddMultiple(files)
	if err != nil {
		return err
	}
	for i, id := range ids {
		fmt.Printf("%s  %s\n", id, files[i].Name)
	}
	return nil
}

func cmdExport(e *engine.Engine, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("export: no directory given")
	}
	dir := args[0]
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	ids := args[1:]
	if len(ids) == 0 {
		ids = e.DocumentIDs()
	}
	for _, id := range ids {
		f, ok := e.Document(id)
		if !ok {
			return fmt.Errorf("no document %q", id)
		}
		name := f.Name
		if name == "" {
			name = id
		}
		path := filepath.Join(dir, name+".gpx")
		fh, err := os.Create(path)
		if err != nil {
			return err
		}
		err = gpx.Serialize(f, fh)
		if cerr := fh.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Println(path)
	}
	return nil
}

func cmdList(e *engine.Engine) error {
	for _, id := range e.DocumentIDs() {
		v, ok := e.View(id)
		if !ok {
			continue
		}
		printMetrics(id, v.File.Name, v.Stats.Total)
	}
	return nil
}

func cmdStats(e *engine.Engine, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("stats: no document ids given")
	}
	items := make([]selection.Item, 0, len(args))
	for _, id := range args {
		if _, ok := e.Document(id); !ok {
			return fmt.Errorf("no document %q", id)
		}
		items = append(items, selection.File(id))
	}
	printMetrics("total", "", e.Aggregate(items))
	return nil
}

func printMetrics(id, name string, m stats.Metrics) {
	label := id
	if name != "" {
		label = fmt.Sprintf("%s  %s", id, name)
	}
	fmt.Printf("%s\n", label)
	fmt.Printf("  points    %d\n", m.PointCount)
	fmt.Printf("  distance  %.2f km\n", m.Distance/1000)
	fmt.Printf("  duration  %s (moving %s)\n", m.Duration, m.MovingDuration)
	fmt.Printf("  elevation +%.0f m / -%.0f m\n", m.ElevationGain, m.ElevationLoss)
	if s := m.MovingSpeed(); s > 0 {
		fmt.Printf("  speed     %.2f km/h moving\n", s*3.6)
	}
}

func cmdCrop(e *engine.Engine, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("crop: want <id> <start> <end>")
	}
	start, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("crop: bad start: %w", err)
	}
	end, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("crop: bad end: %w", err)
	}
	return e.CropSelection(selection.NewSet(selection.File(args[0])), start, end)
}

func cmdClean(e *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	outside := fs.Bool("outside", false, "Delete points outside the bounds instead of inside")
	waypoints := fs.Bool("waypoints", false, "Also delete waypoints")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 5 {
		return fmt.Errorf("clean: want <id> <minLat> <minLon> <maxLat> <maxLon>")
	}
	coords := make([]float64, 4)
	for i, s := range rest[1:] {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("clean: bad coordinate %q: %w", s, err)
		}
		coords[i] = v
	}
	return e.Clean(selection.NewSet(selection.File(rest[0])), engine.CleanOptions{
		Bounds: geo.Bounds{
			Min: geo.Coord{Lat: coords[0], Lon: coords[1]},
			Max: geo.Coord{Lat: coords[2], Lon: coords[3]},
		},
		Inside:    !*outside,
		Tracks:    true,
		Waypoints: *waypoints,
	})
}

func cmdReduce(e *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("reduce", flag.ContinueOnError)
	script := fs.String("script", "", "Lua reducer script (default: radial distance)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 2 {
		return fmt.Errorf("reduce: want <id> <tolerance-m>")
	}
	id := rest[0]
	tolerance, err := strconv.ParseFloat(rest[1], 64)
	if err != nil {
		return fmt.Errorf("reduce: bad tolerance: %w", err)
	}

	r := reducer.New()
	defer r.Close()
	if *script != "" {
		err = r.LoadFile(*script)
	} else {
		err = r.LoadString(reducer.RadialDistance)
	}
	if err != nil {
		return err
	}

	f, ok := e.Document(id)
	if !ok {
		return fmt.Errorf("no document %q", id)
	}
	before := f.PointCount()
	for ti, tr := range f.Tracks {
		for si, seg := range tr.Segments {
			kept, err := r.Run(seg.Points, tolerance)
			if err != nil {
				return err
			}
			if err := e.Reduce(id, ti, si, kept); err != nil {
				return err
			}
		}
	}
	if f, ok = e.Document(id); ok {
		fmt.Printf("%d -> %d points\n", before, f.PointCount())
	} else {
		fmt.Printf("%d -> 0 points, document deleted\n", before)
	}
	return nil
}

func cmdMerge(e *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	blend := fs.Bool("blend", false, "Flatten into one re-timed segment")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids := fs.Args()
	if len(ids) < 2 {
		return fmt.Errorf("merge: want at least two document ids")
	}
	items := make([]selection.Item, 0, len(ids))
	for _, id := range ids {
		if _, ok := e.Document(id); !ok {
			return fmt.Errorf("no document %q", id)
		}
		items = append(items, selection.File(id))
	}
	return e.MergeSelection(selection.NewSet(items...), *blend)
}

func cmdExtract(e *engine.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("extract: want <id>")
	}
	ids, err := e.Extract(args[0])
	if err != nil {
		return err
	}
	for _, id := range ids {
		f, _ := e.Document(id)
		fmt.Printf("%s  %s\n", id, f.Name)
	}
	return nil
}

func cmdSplit(e *engine.Engine, cfg config.Config, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("split: want <id> <lat> <lon>")
	}
	lat, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("split: bad latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("split: bad longitude: %w", err)
	}
	mode, err := engine.ParseSplitMode(cfg.SplitMode)
	if err != nil {
		return err
	}
	newID, err := e.Split(args[0], geo.Coord{Lat: lat, Lon: lon}, mode)
	if err != nil {
		return err
	}
	if newID != "" {
		fmt.Println(newID)
	}
	return nil
}

func cmdReverse(e *engine.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("reverse: want <id>")
	}
	return e.ReverseSelection(selection.NewSet(selection.File(args[0])))
}

func cmdDelete(e *engine.Engine, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("delete: no document ids given")
	}
	return e.Delete(args...)
}
