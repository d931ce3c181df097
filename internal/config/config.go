package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/roadside-data/capture.report/internal/capture"
)

// Config represents the root configuration for one camera's capture
// pipeline. Tuning fields are optional pointers so partial JSON configs
// and overlays compose: nil means "use the default".
type Config struct {
	// Camera identity and transport
	CameraID  string `json:"camera_id,omitempty"`
	SourceURL string `json:"source_url,omitempty"`

	// Storage params
	Bucket    string `json:"bucket,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
	AWSRegion string `json:"aws_region,omitempty"`

	// Admission params
	ROI                     *capture.CameraROI `json:"roi,omitempty"`
	MotionThreshold         *float64           `json:"motion_threshold,omitempty"`
	DetectorConfidence      *float64           `json:"detector_confidence,omitempty"`
	HashSimilarityThreshold *float64           `json:"hash_similarity_threshold,omitempty"`
	DedupCacheSize          *int               `json:"dedup_cache_size,omitempty"`
	MinCaptureInterval      *string            `json:"min_capture_interval,omitempty"` // duration string like "2s"

	// Stream params
	FrameStride      *int    `json:"frame_stride,omitempty"`
	StatsInterval    *string `json:"stats_interval,omitempty"`    // duration string like "60s"
	ReconnectBackoff *string `json:"reconnect_backoff,omitempty"` // duration string like "5s"

	// Local paths
	ModelPath   string `json:"model_path,omitempty"`
	JournalPath string `json:"journal_path,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a Config with all fields unset.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON retain their defaults,
// so partial configs are safe.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// FromEnv returns a Config populated from environment variables. Unset
// variables leave the corresponding field empty.
func FromEnv() *Config {
	return &Config{
		CameraID:  os.Getenv("CAMERA_ID"),
		SourceURL: os.Getenv("RTSP_URL"),
		Bucket:    os.Getenv("BUCKET_NAME"),
		KeyPrefix: os.Getenv("S3_PREFIX"),
		AWSRegion: os.Getenv("AWS_REGION"),
	}
}

// Merge overlays other onto c: any field set in other wins. Returns c
// for chaining.
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}
	if other.CameraID != "" {
		c.CameraID = other.CameraID
	}
	if other.SourceURL != "" {
		c.SourceURL = other.SourceURL
	}
	if other.Bucket != "" {
		c.Bucket = other.Bucket
	}
	if other.KeyPrefix != "" {
		c.KeyPrefix = other.KeyPrefix
	}
	if other.AWSRegion != "" {
		c.AWSRegion = other.AWSRegion
	}
	if other.ROI != nil {
		c.ROI = other.ROI
	}
	if other.MotionThreshold != nil {
		c.MotionThreshold = other.MotionThreshold
	}
	if other.DetectorConfidence != nil {
		c.DetectorConfidence = other.DetectorConfidence
	}
	if other.HashSimilarityThreshold != nil {
		c.HashSimilarityThreshold = other.HashSimilarityThreshold
	}
	if other.DedupCacheSize != nil {
		c.DedupCacheSize = other.DedupCacheSize
	}
	if other.MinCaptureInterval != nil {
		c.MinCaptureInterval = other.MinCaptureInterval
	}
	if other.FrameStride != nil {
		c.FrameStride = other.FrameStride
	}
	if other.StatsInterval != nil {
		c.StatsInterval = other.StatsInterval
	}
	if other.ReconnectBackoff != nil {
		c.ReconnectBackoff = other.ReconnectBackoff
	}
	if other.ModelPath != "" {
		c.ModelPath = other.ModelPath
	}
	if other.JournalPath != "" {
		c.JournalPath = other.JournalPath
	}
	return c
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.MotionThreshold != nil {
		if *c.MotionThreshold < 0 || *c.MotionThreshold > 1 {
			return fmt.Errorf("motion_threshold must be between 0 and 1, got %f", *c.MotionThreshold)
		}
	}
	if c.DetectorConfidence != nil {
		if *c.DetectorConfidence < 0 || *c.DetectorConfidence > 1 {
			return fmt.Errorf("detector_confidence must be between 0 and 1, got %f", *c.DetectorConfidence)
		}
	}
	if c.HashSimilarityThreshold != nil {
		if *c.HashSimilarityThreshold < 0 || *c.HashSimilarityThreshold > 1 {
			return fmt.Errorf("hash_similarity_threshold must be between 0 and 1, got %f", *c.HashSimilarityThreshold)
		}
	}
	if c.DedupCacheSize != nil && *c.DedupCacheSize < 1 {
		return fmt.Errorf("dedup_cache_size must be positive, got %d", *c.DedupCacheSize)
	}
	if c.FrameStride != nil && *c.FrameStride < 1 {
		return fmt.Errorf("frame_stride must be positive, got %d", *c.FrameStride)
	}
	if c.ROI != nil {
		if err := c.ROI.Validate(); err != nil {
			return err
		}
	}

	durations := []struct {
		name  string
		value *string
	}{
		{"min_capture_interval", c.MinCaptureInterval},
		{"stats_interval", c.StatsInterval},
		{"reconnect_backoff", c.ReconnectBackoff},
	}
	for _, d := range durations {
		if d.value != nil && *d.value != "" {
			if _, err := time.ParseDuration(*d.value); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", d.name, *d.value, err)
			}
		}
	}

	return nil
}

// GetROI returns the capture zone or the default.
func (c *Config) GetROI() capture.CameraROI {
	if c.ROI == nil {
		return capture.DefaultROI()
	}
	return *c.ROI
}

// GetMotionThreshold returns the motion_threshold value or the default.
func (c *Config) GetMotionThreshold() float64 {
	if c.MotionThreshold == nil {
		return 0.05
	}
	return *c.MotionThreshold
}

// GetDetectorConfidence returns the detector_confidence value or the default.
func (c *Config) GetDetectorConfidence() float64 {
	if c.DetectorConfidence == nil {
		return 0.6
	}
	return *c.DetectorConfidence
}

// GetHashSimilarityThreshold returns the hash_similarity_threshold value or the default.
func (c *Config) GetHashSimilarityThreshold() float64 {
	if c.HashSimilarityThreshold == nil {
		return 0.85
	}
	return *c.HashSimilarityThreshold
}

// GetDedupCacheSize returns the dedup_cache_size value or the default.
func (c *Config) GetDedupCacheSize() int {
	if c.DedupCacheSize == nil {
		return 30
	}
	return *c.DedupCacheSize
}

// GetMinCaptureInterval parses and returns the MinCaptureInterval as a time.Duration.
func (c *Config) GetMinCaptureInterval() time.Duration {
	return durationOr(c.MinCaptureInterval, 2*time.Second)
}

// GetStatsInterval parses and returns the StatsInterval as a time.Duration.
func (c *Config) GetStatsInterval() time.Duration {
	return durationOr(c.StatsInterval, 60*time.Second)
}

// GetReconnectBackoff parses and returns the ReconnectBackoff as a time.Duration.
func (c *Config) GetReconnectBackoff() time.Duration {
	return durationOr(c.ReconnectBackoff, 5*time.Second)
}

// GetFrameStride returns the frame_stride value or the default.
func (c *Config) GetFrameStride() int {
	if c.FrameStride == nil {
		return 3
	}
	return *c.FrameStride
}

// GetModelPath returns the model_path value or the default.
func (c *Config) GetModelPath() string {
	if c.ModelPath == "" {
		return "yolov8n.onnx"
	}
	return c.ModelPath
}

// GetJournalPath returns the journal_path value or the default.
func (c *Config) GetJournalPath() string {
	if c.JournalPath == "" {
		return "captures.db"
	}
	return c.JournalPath
}

func durationOr(value *string, fallback time.Duration) time.Duration {
	if value == nil || *value == "" {
		return fallback
	}
	d, err := time.ParseDuration(*value)
	if err != nil {
		return fallback // default on parse error
	}
	return d
}
