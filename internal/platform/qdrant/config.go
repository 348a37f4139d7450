package qdrant

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DistanceEuclid = "Euclid"
	DistanceCosine = "Cosine"
)

type Config struct {
	URL        string
	APIKey     string
	Collection string
	VectorDim  int
	// Distance is used only when the collection is created by this service.
	Distance string
	// CreateIfMissing creates the collection on startup when it does not exist.
	CreateIfMissing bool
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL        ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL        ConfigErrorCode = "invalid_url"
	ConfigErrorMissingCollection ConfigErrorCode = "missing_collection"
	ConfigErrorInvalidVectorDim  ConfigErrorCode = "invalid_vector_dim"
	ConfigErrorInvalidDistance   ConfigErrorCode = "invalid_distance"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "QDRANT_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid QDRANT_URL=%q; expected absolute URL like http://qdrant:6333", e.Value)
	case ConfigErrorMissingCollection:
		return "QDRANT_COLLECTION is required"
	case ConfigErrorInvalidVectorDim:
		return fmt.Sprintf("invalid EMBED_DIM=%q; expected positive integer", e.Value)
	case ConfigErrorInvalidDistance:
		return fmt.Sprintf("invalid qdrant distance %q; expected Euclid or Cosine", e.Value)
	default:
		return "invalid qdrant config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Normalize fills defaults and validates cfg.
func (c Config) Normalize() (Config, error) {
	c.URL = strings.TrimRight(strings.TrimSpace(c.URL), "/")
	c.Collection = strings.TrimSpace(c.Collection)
	if c.URL == "" {
		return c, &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(c.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return c, &ConfigError{Code: ConfigErrorInvalidURL, Value: c.URL, Cause: err}
	}
	if c.Collection == "" {
		return c, &ConfigError{Code: ConfigErrorMissingCollection}
	}
	if c.VectorDim <= 0 {
		return c, &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: strconv.Itoa(c.VectorDim)}
	}
	switch strings.ToLower(strings.TrimSpace(c.Distance)) {
	case "", "euclid":
		c.Distance = DistanceEuclid
	case "cosine":
		c.Distance = DistanceCosine
	default:
		return c, &ConfigError{Code: ConfigErrorInvalidDistance, Value: c.Distance}
	}
	return c, nil
}
