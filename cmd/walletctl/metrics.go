package main

import (
	"fmt"

	"web3-orchestrator/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

const metricsKey = "metrics"

var metricsTextfileFlag = cli.StringFlag{
	Name:    "metrics-textfile",
	Usage:   "write action, read and receipt metrics to this file for the node_exporter textfile collector",
	EnvVars: []string{"W3O_METRICS_TEXTFILE"},
}

type walletMetrics struct {
	reg *prometheus.Registry
	m   *metrics.OrchestratorMetrics
}

func newWalletMetrics() *walletMetrics {
	reg := prometheus.NewRegistry()
	return &walletMetrics{reg: reg, m: metrics.New(reg, metrics.ScopeWallet)}
}

// setupMetrics is the app's Before hook.
func setupMetrics(c *cli.Context) error {
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata[metricsKey] = newWalletMetrics()
	return nil
}

func metricsFrom(c *cli.Context) *metrics.OrchestratorMetrics {
	if wm, ok := c.App.Metadata[metricsKey].(*walletMetrics); ok {
		return wm.m
	}
	return nil
}

// flushMetrics is the app's After hook.
func flushMetrics(c *cli.Context) error {
	wm, ok := c.App.Metadata[metricsKey].(*walletMetrics)
	if !ok {
		return nil
	}
	return writeTextfile(c.String(metricsTextfileFlag.Name), wm.reg)
}

func writeTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
