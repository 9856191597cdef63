package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/relabs-tech/provisioning/iot/patch"
	"github.com/relabs-tech/provisioning/iot/provision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCredentials(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"endpoint.txt":   "a1b2c3-ats.iot.eu-central-1.amazonaws.com",
		"thing_name.txt": "device-001",
		"wifi_ssid.txt":  "HomeNet",
		"wifi_pass.txt":  "s3cr3t!",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	writeCredentials(t, dir)
	out := filepath.Join(t.TempDir(), "patch.bin")
	published := t.TempDir()

	t.Setenv("KSS_DRIVER", "Local")
	t.Setenv("KSS_LOCAL_PATH", published)

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"--credentials", dir, "--out", out, "--verify", "--upload"}, &stdout)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "device-001")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Len(t, data, 3*patch.SlotSize+len("s3cr3t!")+1)

	uploaded, err := os.ReadFile(filepath.Join(published, "patches", "device-001", "patch.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, uploaded)
}

func TestRunMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeCredentials(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, "wifi_ssid.txt")))
	out := filepath.Join(t.TempDir(), "patch.bin")

	err := run(context.Background(), []string{"-c", dir, "-o", out}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, patch.ErrMissingCredentialFile))
	assert.Contains(t, err.Error(), "wifi_ssid.txt")
	assert.NoFileExists(t, out)
}

func TestRunUploadWithoutDriver(t *testing.T) {
	dir := t.TempDir()
	writeCredentials(t, dir)
	t.Setenv("KSS_DRIVER", "")

	err := run(context.Background(), []string{"-c", dir, "-o", filepath.Join(t.TempDir(), "patch.bin"), "--upload"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "KSS_DRIVER")
}

func TestRunCredentialsFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	writeCredentials(t, dir)
	t.Setenv("CREDENTIALS_DIR", dir)
	out := filepath.Join(t.TempDir(), "patch.bin")

	require.NoError(t, run(context.Background(), []string{"--out", out}, &bytes.Buffer{}))
	assert.FileExists(t, out)
}

func TestRunUnexpectedArgument(t *testing.T) {
	err := run(context.Background(), []string{"build"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unexpected argument")
}

func TestRunUploadRejectsUnsafeThingName(t *testing.T) {
	for _, name := range []string{"device-001\n", "fleet/device-001", ""} {
		dir := t.TempDir()
		writeCredentials(t, dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "thing_name.txt"), []byte(name), 0644))
		out := filepath.Join(t.TempDir(), "patch.bin")
		published := t.TempDir()
		t.Setenv("KSS_DRIVER", "Local")
		t.Setenv("KSS_LOCAL_PATH", published)

		err := run(context.Background(), []string{"-c", dir, "-o", out, "--upload"}, &bytes.Buffer{})
		require.Error(t, err, "thing name %q", name)
		assert.True(t, errors.Is(err, provision.ErrInvalidThingName), "got %v", err)
		assert.Contains(t, err.Error(), "thing_name.txt")

		entries, err := os.ReadDir(published)
		require.NoError(t, err)
		assert.Empty(t, entries, "nothing must be published for %q", name)

		// the local image keeps the raw value
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		parsed, err := patch.Parse(data)
		require.NoError(t, err)
		got, _ := parsed.Value(patch.SlotThingName)
		assert.Equal(t, name, string(got))
	}
}
