package config

import (
	"os"
	"strconv"

	"ceasim/internal/errors"
)

// Config represents the complete application configuration. It is built once
// at startup and passed down the component call chain explicitly; no
// component reads ambient configuration.
type Config struct {
	Run      RunConfig
	WTP      WTPConfig
	VOI      VOIConfig
	Budget   BudgetConfig
	Paths    PathConfig
	Database DatabaseConfig
}

// RunConfig holds the Monte-Carlo run settings.
type RunConfig struct {
	Iterations        int
	Seed              int64
	HorizonCycles     int
	CyclesPerYear     int
	DiscountRateCost  float64 // annual, compounded at cycle frequency
	DiscountRateQALY  float64
	ReferenceStrategy string
	StartAge          int
	Workers           int
	BatchSize         int     // iterations per checkpoint batch
	SkipAndCount      bool    // continue past per-iteration transition failures
	ErrorTolerance    float64 // max tolerated fraction of failed iterations
}

// WTPConfig specifies the willingness-to-pay grid.
type WTPConfig struct {
	Lower float64
	Upper float64
	Step  float64
}

// VOIConfig holds value-of-information settings.
type VOIConfig struct {
	PolicyWTP          float64
	EligiblePopulation float64
	EVPPIMethod        string // "regression" or "nested"
	InnerIterations    int    // nested method only
	CVThreshold        float64
	MinIterations      int
}

// BudgetConfig holds budget-impact projection settings.
type BudgetConfig struct {
	Years              int
	EligiblePopulation float64
	BaselineStrategy   string
}

// PathConfig holds file system paths.
type PathConfig struct {
	ParameterTable   string
	CostUtilityTable string
	AdoptionTable    string
	OutputDir        string
}

// DatabaseConfig holds optional checkpoint-store connection settings.
type DatabaseConfig struct {
	URL     string
	Enabled bool
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	config := &Config{
		Run: RunConfig{
			Iterations:        getEnvIntOrDefault("ITERATIONS", 1000),
			Seed:              int64(getEnvIntOrDefault("SEED", 42)),
			HorizonCycles:     getEnvIntOrDefault("HORIZON_CYCLES", 120),
			CyclesPerYear:     getEnvIntOrDefault("CYCLES_PER_YEAR", 12),
			DiscountRateCost:  getEnvFloatOrDefault("DISCOUNT_RATE_COST", 0.035),
			DiscountRateQALY:  getEnvFloatOrDefault("DISCOUNT_RATE_QALY", 0.035),
			ReferenceStrategy: getEnvOrDefault("REFERENCE_STRATEGY", ""),
			StartAge:          getEnvIntOrDefault("START_AGE", 40),
			Workers:           getEnvIntOrDefault("WORKERS", 4),
			BatchSize:         getEnvIntOrDefault("BATCH_SIZE", 250),
			SkipAndCount:      getEnvBoolOrDefault("SKIP_AND_COUNT", false),
			ErrorTolerance:    getEnvFloatOrDefault("ERROR_TOLERANCE", 0.01),
		},
		WTP: WTPConfig{
			Lower: getEnvFloatOrDefault("WTP_LOWER", 0),
			Upper: getEnvFloatOrDefault("WTP_UPPER", 100000),
			Step:  getEnvFloatOrDefault("WTP_STEP", 5000),
		},
		VOI: VOIConfig{
			PolicyWTP:          getEnvFloatOrDefault("POLICY_WTP", 50000),
			EligiblePopulation: getEnvFloatOrDefault("ELIGIBLE_POPULATION", 100000),
			EVPPIMethod:        getEnvOrDefault("EVPPI_METHOD", "regression"),
			InnerIterations:    getEnvIntOrDefault("EVPPI_INNER_ITERATIONS", 200),
			CVThreshold:        getEnvFloatOrDefault("EVPI_CV_THRESHOLD", 0.05),
			MinIterations:      getEnvIntOrDefault("EVPI_MIN_ITERATIONS", 100),
		},
		Budget: BudgetConfig{
			Years:              getEnvIntOrDefault("BUDGET_YEARS", 5),
			EligiblePopulation: getEnvFloatOrDefault("ELIGIBLE_POPULATION", 100000),
			BaselineStrategy:   getEnvOrDefault("BASELINE_STRATEGY", ""),
		},
		Paths: PathConfig{
			ParameterTable:   getEnvOrDefault("PARAMETER_TABLE", ""),
			CostUtilityTable: getEnvOrDefault("COST_UTILITY_TABLE", ""),
			AdoptionTable:    getEnvOrDefault("ADOPTION_TABLE", ""),
			OutputDir:        getEnvOrDefault("OUTPUT_DIR", "./out"),
		},
		Database: DatabaseConfig{
			URL:     getEnvOrDefault("DATABASE_URL", ""),
			Enabled: getEnvBoolOrDefault("CHECKPOINT_ENABLED", false),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if config.Run.Iterations < 1 {
		return errors.ConfigInvalid("ITERATIONS must be positive")
	}
	if config.Run.HorizonCycles < 1 {
		return errors.ConfigInvalid("HORIZON_CYCLES must be positive")
	}
	if config.Run.CyclesPerYear < 1 {
		return errors.ConfigInvalid("CYCLES_PER_YEAR must be positive")
	}
	if config.Run.DiscountRateCost < 0 || config.Run.DiscountRateQALY < 0 {
		return errors.ConfigInvalid("discount rates cannot be negative")
	}
	if config.Run.Workers < 1 {
		return errors.ConfigInvalid("WORKERS must be positive")
	}
	if config.Run.BatchSize < 1 {
		return errors.ConfigInvalid("BATCH_SIZE must be positive")
	}
	if config.Run.ErrorTolerance < 0 || config.Run.ErrorTolerance > 1 {
		return errors.ConfigInvalid("ERROR_TOLERANCE must be in [0,1]")
	}
	if m := config.VOI.EVPPIMethod; m != "regression" && m != "nested" {
		return errors.ConfigInvalid("EVPPI_METHOD must be 'regression' or 'nested'")
	}
	if config.Database.Enabled && config.Database.URL == "" {
		return errors.ConfigInvalid("DATABASE_URL is required when CHECKPOINT_ENABLED is set")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
