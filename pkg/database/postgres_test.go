package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/wonny/stockscanner/pkg/config"
)

func TestNewAndHealthCheck(t *testing.T) {
	// Skip if DATABASE_URL is not set
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := New(ctx, config.DatabaseConfig{
		URL:             url,
		MaxConns:        2,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
	})
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	status := db.HealthCheck(ctx)
	if !status.Healthy {
		t.Errorf("Expected healthy database, got error %q", status.Error)
	}
	if status.TotalConns < 1 {
		t.Errorf("Expected at least one connection, got %d", status.TotalConns)
	}
}

func TestNewInvalidURL(t *testing.T) {
	_, err := New(context.Background(), config.DatabaseConfig{URL: "://not-a-url"})
	if err == nil {
		t.Fatal("Expected error for invalid URL")
	}
}
