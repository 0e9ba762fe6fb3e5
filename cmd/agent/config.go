package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// defaultExcludedNamespaces matches kube-guardian's own default: the system
// namespace plus the agent's own namespace, neither of which is workload
// traffic worth reporting on.
const defaultExcludedNamespaces = "kube-system,kube-guardian"

// Config is the agent's environment-sourced configuration. It is parsed once
// at startup in loadConfig; nothing in this process re-reads the
// environment afterward.
type Config struct {
	NodeName               string
	APIEndpoint            string
	ExcludedNamespaces     map[string]struct{}
	IgnoreDaemonSetTraffic bool
	LogLevel               string
}

// loadConfig reads CURRENT_NODE, API_ENDPOINT, EXCLUDED_NAMESPACES,
// IGNORE_DAEMONSET_TRAFFIC, and LOG_LEVEL from the environment.
func loadConfig() (Config, error) {
	node := os.Getenv("CURRENT_NODE")
	if node == "" {
		return Config{}, fmt.Errorf("CURRENT_NODE is required")
	}

	endpoint := os.Getenv("API_ENDPOINT")
	if endpoint == "" {
		return Config{}, fmt.Errorf("API_ENDPOINT is required")
	}

	excludedRaw := os.Getenv("EXCLUDED_NAMESPACES")
	if excludedRaw == "" {
		excludedRaw = defaultExcludedNamespaces
	}
	excluded := make(map[string]struct{})
	for _, ns := range strings.Split(excludedRaw, ",") {
		ns = strings.TrimSpace(ns)
		if ns != "" {
			excluded[ns] = struct{}{}
		}
	}

	ignoreDaemonSet := true
	if v := os.Getenv("IGNORE_DAEMONSET_TRAFFIC"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("IGNORE_DAEMONSET_TRAFFIC: %w", err)
		}
		ignoreDaemonSet = parsed
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return Config{
		NodeName:               node,
		APIEndpoint:            endpoint,
		ExcludedNamespaces:     excluded,
		IgnoreDaemonSetTraffic: ignoreDaemonSet,
		LogLevel:               logLevel,
	}, nil
}
