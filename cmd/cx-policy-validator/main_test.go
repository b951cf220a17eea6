package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/cx-policy-validator/pkg/api"
	"github.com/polisai/cx-policy-validator/pkg/config"
	"github.com/polisai/cx-policy-validator/pkg/logging"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "cx-policy-validator dev (none)\n", out)
}

func TestVocabularyCommand(t *testing.T) {
	out, err := execute(t, "", "vocabulary", "--action", "use", "--kind", "permission", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, strings.Split(strings.TrimSpace(out), "\n"), "Membership")

	out, err = execute(t, "", "vocabulary")
	require.NoError(t, err)
	assert.Contains(t, out, "left_operands:")
	assert.Contains(t, out, "Membership:")

	_, err = execute(t, "", "vocabulary", "--action", "teleport")
	assert.ErrorContains(t, err, `unknown action "teleport"`)
}

func TestValidateCommand(t *testing.T) {
	valid := writeFile(t, "valid.json", `{"@type":"PolicyDefinition","policy":{"permission":[{"action":"use"}]}}`)

	out, err := execute(t, "", "validate", valid, "--log-level", "error")
	require.NoError(t, err)
	assert.JSONEq(t, `{"isValid":true,"messages":[]}`, out)

	out, err = execute(t, `{"@type":"PolicyDefinition","policy":{"permission":[{"action":"unsupportedOp"}]}}`, "validate", "-")
	assert.ErrorIs(t, err, errPolicyInvalid)
	assert.JSONEq(t, `{"isValid":false,"messages":["unsupported action: unsupportedOp"]}`, out)

	out, err = execute(t, `{"@type":"PolicyDefinition"}`, "validate")
	assert.ErrorIs(t, err, errPolicyInvalid)
	assert.Contains(t, out, `"type": "ValidationFailure"`)
	assert.NotContains(t, out, "isValid")

	_, err = execute(t, `not json`, "validate")
	assert.ErrorContains(t, err, "decode policy definition")

	_, err = execute(t, "", "validate", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "open policy definition")
}

func TestValidateCommand_UnknownTransformerContext(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", "validation:\n  transformer_context: legacy\n")

	_, err := execute(t, `{"policy":{}}`, "validate", "--config", cfgPath)
	assert.ErrorContains(t, err, `unknown transformer context "legacy"`)
}

func TestRunServe(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Address = "127.0.0.1:0"
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, cfg, logging.NewLogger(logging.Config{Level: "error", Output: io.Discard}), ready)
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Post("http://"+addr+"/management"+api.ValidationPath, "application/json",
		strings.NewReader(`{"@type":"PolicyDefinition","policy":{"permission":[{"action":"use"}]}}`))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"isValid":true,"messages":[]}`, string(body))

	resp, err = http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `cxv_jsonld_cached_documents{status="registered"} 2`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunServe_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	vocabPath := filepath.Join(dir, "vocabulary.yaml")
	vocab, err := os.ReadFile(filepath.Join("..", "..", "pkg", "policy", "vocabulary.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(vocabPath, vocab, 0o600))

	cfg := config.Default()
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Validation.VocabularyFile = vocabPath
	cfg.Validation.Watch = true
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, cfg, logging.NewLogger(logging.Config{Level: "error", Output: io.Discard}), ready)
	}()
	addr := <-ready

	require.NoError(t, os.WriteFile(vocabPath, vocab, 0o600))

	assert.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), `cxv_rule_reloads_total{status="success"}`)
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestRunServe_TLSCertificateMissing(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Server.TLS = config.TLSConfig{
		CertFile: filepath.Join(dir, "missing.crt"),
		KeyFile:  filepath.Join(dir, "missing.key"),
	}
	require.NoError(t, cfg.Validate())

	err := runServe(context.Background(), cfg, logging.NewLogger(logging.Config{Level: "error", Output: io.Discard}), nil)
	assert.ErrorContains(t, err, "tls: load server certificate")
}
