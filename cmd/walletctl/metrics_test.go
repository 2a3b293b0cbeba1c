package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func metricsApp(action cli.ActionFunc) *cli.App {
	app := cli.NewApp()
	app.Name = "walletctl"
	app.Flags = []cli.Flag{&metricsTextfileFlag}
	app.Before = setupMetrics
	app.After = flushMetrics
	app.Commands = []*cli.Command{{Name: "transfer", Action: action}}
	return app
}

func TestMetrics_WrittenToTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletctl.prom")
	app := metricsApp(func(c *cli.Context) error {
		m := metricsFrom(c)
		require.NotNil(t, m)
		m.ObserveAction("transfer", "CONFIRMED")
		m.ObserveReadFailure("native")
		m.ObserveReceiptWait(3)
		m.ObserveVerification("ok")
		return nil
	})

	require.NoError(t, app.Run([]string{"walletctl", "--metrics-textfile", path, "transfer"}))

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, `w3o_actions_total{kind="transfer",state="CONFIRMED"} 1`)
	assert.Contains(t, text, `w3o_snapshot_read_failures_total{field="native"} 1`)
	assert.Contains(t, text, "w3o_receipt_wait_seconds_count 1")
	assert.NotContains(t, text, "w3o_payment_verifications_total")
}

func TestWriteTextfile(t *testing.T) {
	wm := newWalletMetrics()

	assert.NoError(t, writeTextfile("", wm.reg))

	missing := filepath.Join(t.TempDir(), "missing", "walletctl.prom")
	assert.ErrorContains(t, writeTextfile(missing, wm.reg), "writing metrics textfile")
}

func TestMetricsFrom_WithoutSetup(t *testing.T) {
	c := cli.NewContext(cli.NewApp(), nil, nil)
	assert.Nil(t, metricsFrom(c))
}
