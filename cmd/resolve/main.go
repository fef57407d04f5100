// Command mediagrab-resolve resolves one source into format offers from the
// command line and can acquire one of them into a local directory.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/iconidentify/mediagrab/internal/config"
	"github.com/iconidentify/mediagrab/internal/domain"
	"github.com/iconidentify/mediagrab/internal/downloader"
	"github.com/iconidentify/mediagrab/internal/engine"
	"github.com/iconidentify/mediagrab/internal/repository"
	"github.com/iconidentify/mediagrab/internal/selector"
	"github.com/iconidentify/mediagrab/internal/service"
	"github.com/iconidentify/mediagrab/internal/source"
	"github.com/iconidentify/mediagrab/pkg/ffmpeg"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	catalogDir := flag.String("catalogs", "", "Directory of <source_id>.json catalogs (or pass a file path as the source)")
	sourceURL := flag.String("source-url", "", "Base URL of the catalog API; overrides -catalogs")
	profile := flag.String("profile", service.ProfileDefault, "Selection profile: default, shorts or audio")
	unknownSize := flag.String("unknown-size", "skip", "Streams without a byte length: skip or flag")
	asJSON := flag.Bool("json", false, "Print offers as JSON")
	fetch := flag.Int("fetch", 0, "Acquire offer N (1-based) after resolving")
	outDir := flag.String("out", ".", "Directory the acquired file is written to")
	ffmpegPath := flag.String("ffmpeg", "ffmpeg", "Path to ffmpeg")
	verbose := flag.Bool("v", false, "Verbose logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: mediagrab-resolve [flags] <source_id | catalog.json>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("mediagrab-resolve %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\ncancelled")
		cancel()
	}()

	var src source.Source = source.FileSource{Dir: *catalogDir}
	if *sourceURL != "" {
		src = source.NewHTTPSource(config.SourceConfig{
			BaseURL:       *sourceURL,
			Timeout:       20 * time.Second,
			MaxAttempts:   3,
			RetryDelay:    time.Second,
			MaxRetryDelay: 10 * time.Second,
		}, logger)
	}

	policy, err := selector.ParseUnknownSizePolicy(*unknownSize)
	if err != nil {
		fatal(err)
	}

	scratch, err := engine.NewScratch(*outDir, logger)
	if err != nil {
		fatal(err)
	}
	// The jobs directory is only needed while a job runs.
	defer os.Remove(filepath.Join(scratch.Root(), ".jobs"))

	acquirer := engine.NewAcquirer(
		scratch,
		downloader.NewHTTPDownloader(config.DownloadConfig{Timeout: 30 * time.Second, ReadTimeout: 60 * time.Second}, logger),
		ffmpeg.NewRemuxer(ffmpeg.Config{FFmpegPath: *ffmpegPath}),
		nil,
		engine.Options{TitleMaxLen: 40, MinFreeFactor: 1.5},
		logger,
	)
	svc := service.NewMediaService(src, repository.NewInMemorySessionStore(), acquirer, scratch, service.MediaConfig{
		Selection: selector.Options{UnknownSize: policy},
	}, logger)

	res, err := svc.Resolve(ctx, flag.Arg(0), *profile)
	if err != nil {
		fatal(err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fatal(err)
		}
	} else {
		printOffers(os.Stdout, res)
	}

	if *fetch == 0 {
		return
	}
	if *fetch < 1 || *fetch > len(res.Offers) {
		fatal(fmt.Errorf("offer %d out of range 1..%d", *fetch, len(res.Offers)))
	}

	start := time.Now()
	file, err := svc.Redeem(ctx, res.Offers[*fetch-1].Token)
	if err != nil {
		if ctx.Err() != nil {
			os.Exit(130) // Cancelled by signal
		}
		fatal(err)
	}
	fmt.Printf("\nSaved %s (%.1f MB) in %s\n", file.Path, domain.BytesToMB(file.Size), time.Since(start).Round(time.Millisecond))
}

func printOffers(w io.Writer, res *service.Resolution) {
	fmt.Fprintf(w, "%s [%s] profile=%s\n\n", res.Title, res.SourceID, res.Profile)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tQUALITY\tKIND\tSIZE\tVERIFIED")
	for i, o := range res.Offers {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f MB\t%t\n", i+1, o.Quality, o.Kind, o.SizeMB, o.Verified)
	}
	tw.Flush()
}

func fatal(err error) {
	msg := err.Error()
	if domain.IsSourceLimitation(err) {
		msg = "source limitation: " + msg
	} else if errors.Is(err, domain.ErrSourceNotFound) {
		msg = "not found: " + msg
	}
	fmt.Fprintln(os.Stderr, "error:", msg)
	os.Exit(1)
}
