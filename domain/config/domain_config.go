package config

import "time"

// DomainConfig holds all configurable business rules and constraints
type DomainConfig struct {
	// Organization trigger
	DebounceDelay     time.Duration
	OrganizeThreshold int
	BatchSize         int

	// Refinement quality gates
	MinRefinementOverlap float64
	MinLengthRatio       float64
	MaxLengthRatio       float64

	// Fallback placement
	FallbackOverlapThreshold float64
	CatchAllPath             string

	// Path constraints
	MaxSegmentLength int
	MaxPathDepth     int
	UniquifyBudget   int

	// Node constraints
	MaxTitleLength   int
	MaxContentLength int

	// Oracle context budget
	MaxTreeListingEntries int
	MaxContentPreviewLen  int

	// Validation settings
	AllowEmptyContent bool
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		// Organization trigger
		DebounceDelay:     2 * time.Second,
		OrganizeThreshold: 5,
		BatchSize:         5,

		// Refinement quality gates
		MinRefinementOverlap: 0.4,
		MinLengthRatio:       0.33,
		MaxLengthRatio:       3.0,

		// Fallback placement
		FallbackOverlapThreshold: 0.1,
		CatchAllPath:             "/Unsorted",

		// Path constraints
		MaxSegmentLength: 100,
		MaxPathDepth:     10,
		UniquifyBudget:   100,

		// Node constraints
		MaxTitleLength:   200,
		MaxContentLength: 50000,

		// Oracle context budget
		MaxTreeListingEntries: 200,
		MaxContentPreviewLen:  2000,

		AllowEmptyContent: false,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	config.MaxContentLength = 20000
	config.MaxTreeListingEntries = 100
	config.OrganizeThreshold = 8

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	config.DebounceDelay = 500 * time.Millisecond
	config.OrganizeThreshold = 2
	config.BatchSize = 2
	config.AllowEmptyContent = true

	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Clone returns a copy so per-session tuning cannot leak across sessions
func (c *DomainConfig) Clone() *DomainConfig {
	copied := *c
	return &copied
}

// Validate checks if the configuration is valid
func (c *DomainConfig) Validate() error {
	return nil
}
