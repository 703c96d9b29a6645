package s3store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"NoSuchKey", minio.ErrorResponse{Code: "NoSuchKey"}, true},
		{"HEAD 404", minio.ErrorResponse{StatusCode: 404}, true},
		{"обёрнутый NoSuchKey", fmt.Errorf("get: %w", minio.ErrorResponse{Code: "NoSuchKey"}), true},
		{"AccessDenied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}, false},
		{"произвольная ошибка", errors.New("timeout"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNotFound(tt.err); got != tt.want {
				t.Errorf("isNotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestConfig_HealthURL(t *testing.T) {
	cfg := Config{Endpoint: "minio:9000"}
	if got := cfg.HealthURL(); got != "http://minio:9000/minio/health/live" {
		t.Errorf("HealthURL = %s", got)
	}

	cfg.UseSSL = true
	if got := cfg.HealthURL(); got != "https://minio:9000/minio/health/live" {
		t.Errorf("HealthURL = %s", got)
	}
}
