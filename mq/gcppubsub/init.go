package gcppubsub

import (
	"errors"
	"os"
)

// GetGCPProjectID prefers the configured project, then GCP_PROJECT_ID.
func GetGCPProjectID(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	projectID := os.Getenv("GCP_PROJECT_ID")
	if projectID == "" {
		return "", errors.New("GCP_PROJECT_ID environment variable must be set")
	}
	return projectID, nil
}
