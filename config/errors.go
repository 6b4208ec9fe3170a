package config

import "errors"

// Configuration validation errors
var (
	ErrConfigValidateError = errors.New("configuration validation error")
	ErrInvalidStore        = errors.New("invalid store configuration")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound  = errors.New("configuration file not found")
	ErrConfigParseError    = errors.New("configuration parse error")
	ErrUnsupportedFormat   = errors.New("unsupported configuration format")
	ErrEnvironmentVarError = errors.New("environment variable error")
	ErrConfigWatchError    = errors.New("configuration watch error")
)
