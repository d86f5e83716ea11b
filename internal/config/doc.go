// Package config provides configuration structures and utilities for the
// dataroma crawler: network politeness settings, cache locations, crawl
// cadence and the manager display-name table.
package config
