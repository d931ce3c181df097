package config

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/roadside-data/capture.report/internal/capture"
)

// CameraSecretID is the Secrets Manager entry holding per-camera stream
// credentials and zone overrides for the whole fleet.
const CameraSecretID = "vehicle-monitoring/camera-credentials"

// SecretFetcher is the slice of the Secrets Manager client we need.
type SecretFetcher interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// cameraSecret mirrors the fleet secret's JSON layout.
type cameraSecret struct {
	Cameras []struct {
		CameraID        string `json:"cameraId"`
		RTSPURL         string `json:"rtspUrl"`
		MotionDetection struct {
			PlateROI *capture.CameraROI `json:"plateROI"`
		} `json:"motionDetection"`
	} `json:"cameras"`
}

// FromSecret fetches the fleet secret and returns the overlay Config for
// cameraID: its stream URL and, when present, its capture zone.
func FromSecret(ctx context.Context, fetcher SecretFetcher, cameraID string) (*Config, error) {
	out, err := fetcher.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(CameraSecretID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch camera secret: %w", err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("camera secret %s has no string payload", CameraSecretID)
	}

	var secret cameraSecret
	if err := json.Unmarshal([]byte(*out.SecretString), &secret); err != nil {
		return nil, fmt.Errorf("failed to parse camera secret: %w", err)
	}

	for _, cam := range secret.Cameras {
		if cam.CameraID != cameraID {
			continue
		}
		cfg := &Config{
			CameraID:  cam.CameraID,
			SourceURL: cam.RTSPURL,
			ROI:       cam.MotionDetection.PlateROI,
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("camera %s secret entry invalid: %w", cameraID, err)
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("camera %s not present in secret %s", cameraID, CameraSecretID)
}
