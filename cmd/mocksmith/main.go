package main

import (
	"fmt"
	"os"
	"time"

	"mocksmith/common/environment"
	"mocksmith/common/version"
	"mocksmith/internal/mocksmith/app"
	"mocksmith/internal/mocksmith/matrix"
)

func main() {
	fmt.Printf("Mocksmith\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	config := loadConfig()

	if config.Matrix.Homeserver == "" {
		fmt.Fprintf(os.Stderr, "Error: MATRIX_HOMESERVER is required\n")
		os.Exit(1)
	}
	if config.Matrix.UserID == "" {
		fmt.Fprintf(os.Stderr, "Error: MATRIX_USER_ID is required\n")
		os.Exit(1)
	}
	if config.Matrix.AccessToken == "" {
		fmt.Fprintf(os.Stderr, "Error: MATRIX_ACCESS_TOKEN is required\n")
		os.Exit(1)
	}
	if len(config.Matrix.OperatorRooms) == 0 {
		fmt.Fprintf(os.Stderr, "Error: MATRIX_OPERATOR_ROOMS is required\n")
		os.Exit(1)
	}

	mocksmith, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize mocksmith: %v\n", err)
		os.Exit(1)
	}
	defer mocksmith.Stop()

	if err := mocksmith.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running mocksmith: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables.
func loadConfig() *app.Config {
	return &app.Config{
		DatabasePath: environment.StringOr("DATABASE_PATH", "./mocksmith.db"),
		Matrix: matrix.Config{
			Homeserver:    environment.StringOr("MATRIX_HOMESERVER", ""),
			UserID:        environment.StringOr("MATRIX_USER_ID", ""),
			AccessToken:   environment.StringOr("MATRIX_ACCESS_TOKEN", ""),
			OperatorRooms: environment.StringSliceOr("MATRIX_OPERATOR_ROOMS", nil),
		},
		DefaultWorkspace: environment.StringOr("MOCKSMITH_WORKSPACE", "default"),
		OperatorSenders:  environment.StringSliceOr("MOCKSMITH_OPERATOR_SENDERS", nil),
		EngineAdminURL:   environment.StringOr("MOCKSMITH_ENGINE_ADMIN_URL", ""),
		EnableDocker:     environment.BoolOr("MOCKSMITH_ENABLE_DOCKER", false),
		DockerNetwork:    environment.StringOr("MOCKSMITH_DOCKER_NETWORK", ""),
		EngineImage:      environment.StringOr("MOCKSMITH_ENGINE_IMAGE", ""),
		HTTPAddr:         environment.StringOr("MOCKSMITH_HTTP_ADDR", ""),
		OracleAPIKeyEnv:  environment.StringOr("MOCKSMITH_ORACLE_API_KEY_ENV", ""),
		SessionTTL:       environment.DurationOr("MOCKSMITH_SESSION_TTL", 15*time.Minute),
		SessionMaxTurns:  environment.IntOr("MOCKSMITH_SESSION_MAX_TURNS", 20),
	}
}
