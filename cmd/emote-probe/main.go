// emote-probe: classify the expression in one image and print JSON
//
//	emote-probe -estimator-url http://localhost:5000 face.jpg
//	emote-probe -cloudvision -credentials key.json face.jpg
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	applog "github.com/teslashibe/go-emote/internal/log"
	"github.com/teslashibe/go-emote/pkg/estimator"
	"github.com/teslashibe/go-emote/pkg/estimator/cloudvision"
	"github.com/teslashibe/go-emote/pkg/estimator/remote"
)

var (
	estimatorURL = flag.String("estimator-url", os.Getenv("EMOTE_ESTIMATOR_URL"), "remote landmark service URL")
	useVision    = flag.Bool("cloudvision", false, "use Google Cloud Vision")
	credentials  = flag.String("credentials", "", "Cloud Vision service account key file")
	maxFaces     = flag.Int("max-faces", 1, "faces to request; the largest is classified")
	maxSide      = flag.Int("max-side", 640, "downscale so the longest side is at most this; 0 keeps the size")
	timeout      = flag.Duration("timeout", 15*time.Second, "overall timeout")
	verbose      = flag.Bool("v", false, "debug logging to stderr")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: emote-probe [flags] image.jpg\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := applog.New(os.Stderr, level, "text")

	if err := run(flag.Arg(0), logger); err != nil {
		fmt.Fprintf(os.Stderr, "emote-probe: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	est, err := newEstimator(ctx, logger)
	if err != nil {
		return err
	}
	defer est.Close()

	report, err := probe(ctx, data, est, options{
		MaxFaces:      *maxFaces,
		TargetMaxSide: *maxSide,
	})
	if err != nil {
		return err
	}
	report.File = path

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func newEstimator(ctx context.Context, logger *slog.Logger) (estimator.Estimator, error) {
	switch {
	case *useVision:
		cfg := cloudvision.DefaultConfig()
		cfg.Logger = logger
		if *credentials != "" {
			key, err := os.ReadFile(*credentials)
			if err != nil {
				return nil, err
			}
			cfg.CredentialsJSON = key
		}
		return cloudvision.New(ctx, cfg)
	case *estimatorURL != "":
		return remote.New(*estimatorURL, remote.WithLogger(logger), remote.WithTimeout(*timeout))
	}
	return nil, fmt.Errorf("no estimator: set -estimator-url or -cloudvision")
}
