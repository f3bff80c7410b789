package main

import (
	"fmt"
	"os"
	"time"

	"github.com/bdobrica/kaiwa/common/environment"
	"github.com/bdobrica/kaiwa/common/version"
	"github.com/bdobrica/kaiwa/internal/kaiwa/app"
	"github.com/bdobrica/kaiwa/internal/kaiwa/completion"
	"github.com/bdobrica/kaiwa/internal/kaiwa/matrix"
)

func main() {
	fmt.Printf("Kaiwa Matrix Bridge\n")
	fmt.Printf("Version: %s\n", version.Info())
	fmt.Println()

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	kaiwa, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Kaiwa: %v\n", err)
		os.Exit(1)
	}
	defer kaiwa.Stop()

	if err := kaiwa.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Kaiwa: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig assembles the application configuration from environment
// variables.
func loadConfig() (*app.Config, error) {
	homeserver, err := environment.RequiredString("MATRIX_HOMESERVER")
	if err != nil {
		return nil, err
	}
	userID, err := environment.RequiredString("MATRIX_USER_ID")
	if err != nil {
		return nil, err
	}
	accessToken, err := environment.RequiredString("MATRIX_ACCESS_TOKEN")
	if err != nil {
		return nil, err
	}
	apiKey, err := environment.RequiredString("OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	// DATABASE_PATH set to the empty string explicitly disables sync-token
	// persistence; unset falls back to the default file.
	dbPath := "./kaiwa.db"
	if v, ok := environment.String("DATABASE_PATH"); ok {
		dbPath = v
	}

	return &app.Config{
		DatabasePath: dbPath,
		Matrix: matrix.Config{
			Homeserver:  homeserver,
			UserID:      userID,
			AccessToken: accessToken,
		},
		Completion: completion.Config{
			APIKey:      apiKey,
			BaseURL:     environment.StringOr("OPENAI_BASE_URL", ""),
			Model:       environment.StringOr("KAIWA_MODEL", ""),
			Temperature: environment.FloatOr("KAIWA_TEMPERATURE", 0),
			MaxTokens:   environment.IntOr("KAIWA_MAX_TOKENS", 0),
			MaxAttempts: environment.IntOr("KAIWA_MAX_RETRY_ATTEMPTS", 3),
			BackoffBase: environment.DurationOr("KAIWA_BACKOFF_BASE", 500*time.Millisecond),
		},
		AuthorizedUsers: environment.StringSliceOr("KAIWA_AUTHORIZED_USERS", nil),
		MaxTurns:        environment.IntOr("KAIWA_MAX_TURNS", 50),
		MaxChars:        environment.IntOr("KAIWA_MAX_CHARS", 32000),
		ShutdownGrace:   environment.DurationOr("KAIWA_SHUTDOWN_GRACE", 15*time.Second),
		ProfilePath:     environment.StringOr("KAIWA_PROFILE", ""),
	}, nil
}
