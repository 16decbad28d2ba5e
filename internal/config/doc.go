// Package config loads and validates the organizer's configuration from
// environment variables, logging the effective values at startup.
package config
