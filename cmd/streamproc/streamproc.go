package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/roadside-data/capture.report/internal/capture"
	"github.com/roadside-data/capture.report/internal/config"
	"github.com/roadside-data/capture.report/internal/detect"
	"github.com/roadside-data/capture.report/internal/journal"
	"github.com/roadside-data/capture.report/internal/monitoring"
	"github.com/roadside-data/capture.report/internal/motion"
	"github.com/roadside-data/capture.report/internal/storage"
	"github.com/roadside-data/capture.report/internal/stream"
	"github.com/roadside-data/capture.report/internal/timeutil"
	"github.com/roadside-data/capture.report/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to JSON config file")
	cameraID    = flag.String("camera", "", "Camera identifier")
	sourceURL   = flag.String("url", "", "Stream URL (overrides config and fleet secret)")
	bucket      = flag.String("bucket", "", "S3 bucket for captures")
	keyPrefix   = flag.String("prefix", "", "S3 key prefix for captures")
	modelPath   = flag.String("model", "", "Path to the ONNX detection model")
	journalFile = flag.String("journal", "", "Path to the local capture journal database")
	noSecrets   = flag.Bool("no-secrets", false, "Skip the Secrets Manager camera lookup")
	debug       = flag.Bool("debug", false, "Enable per-frame debug logging")
)

func flagConfig() *config.Config {
	return &config.Config{
		CameraID:    *cameraID,
		SourceURL:   *sourceURL,
		Bucket:      *bucket,
		KeyPrefix:   *keyPrefix,
		ModelPath:   *modelPath,
		JournalPath: *journalFile,
	}
}

func main() {
	flag.Parse()
	monitoring.SetDebug(*debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.EmptyConfig()
	if *configFile != "" {
		fileCfg, err := config.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configFile, err)
		}
		cfg.Merge(fileCfg)
	}
	cfg.Merge(config.FromEnv()).Merge(flagConfig())

	awsCfg, err := loadAWSConfig(ctx, cfg.AWSRegion)
	if err != nil {
		log.Fatalf("Failed to load AWS configuration: %v", err)
	}

	// The fleet secret supplies the stream URL and zone override for the
	// camera. Local settings win, so re-apply env and flags on top.
	if !*noSecrets && cfg.CameraID != "" {
		secretCfg, err := config.FromSecret(ctx, secretsmanager.NewFromConfig(awsCfg), cfg.CameraID)
		if err != nil {
			log.Printf("Warning: fleet secret unavailable for camera %s: %v", cfg.CameraID, err)
		} else {
			cfg = config.EmptyConfig().Merge(secretCfg).Merge(cfg)
		}
	}

	if cfg.CameraID == "" {
		log.Fatal("Camera ID is required (-camera or CAMERA_ID)")
	}
	if cfg.SourceURL == "" {
		log.Fatal("Stream URL is required (-url, RTSP_URL, config file, or fleet secret)")
	}
	if cfg.Bucket == "" {
		log.Fatal("S3 bucket is required (-bucket or BUCKET_NAME)")
	}

	detector, err := detect.NewYOLODetector(cfg.GetModelPath())
	if err != nil {
		log.Fatalf("Failed to load detection model: %v", err)
	}
	defer detector.Close()

	jnl, err := journal.New(cfg.GetJournalPath())
	if err != nil {
		log.Fatalf("Failed to open capture journal: %v", err)
	}
	defer jnl.Close()

	pipeline := capture.NewPipeline(capture.Params{
		ROI:                 cfg.GetROI(),
		MotionThreshold:     cfg.GetMotionThreshold(),
		DetectorConfidence:  cfg.GetDetectorConfidence(),
		SimilarityThreshold: cfg.GetHashSimilarityThreshold(),
		DedupCacheSize:      cfg.GetDedupCacheSize(),
		MinCaptureInterval:  cfg.GetMinCaptureInterval(),
	}, motion.NewGate(motion.Params{}), detector, timeutil.RealClock{})

	uploader := storage.NewS3Uploader(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.KeyPrefix, cfg.CameraID)

	driver := stream.NewDriver(stream.DriverConfig{
		CameraID:         cfg.CameraID,
		URL:              cfg.SourceURL,
		Processor:        pipeline,
		Forwarder:        uploader,
		Journal:          jnl,
		FrameStride:      cfg.GetFrameStride(),
		StatsInterval:    cfg.GetStatsInterval(),
		ReconnectBackoff: cfg.GetReconnectBackoff(),
	})

	log.Printf("streamproc %s (%s) capturing camera %s from %s into s3://%s/%s",
		version.Version, version.GitSHA, cfg.CameraID, cfg.SourceURL, cfg.Bucket, cfg.KeyPrefix)

	if err := driver.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("Stream driver error: %v", err)
	}

	// Flush lifetime totals so short runs still show their full numbers.
	pipeline.Stats().LogTotals(cfg.CameraID)
	log.Print("Capture stopped")
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	if region != "" {
		return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(ctx)
}
