package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// batchRunFile is the name of the sidecar file runBatched writes into each
// batch's working directory (alongside batchbackend.BatchCaseFile)
// identifying the workspace, session and configuration a nested
// `canary batch-run` invocation should use. ShellBackend sets the nested
// process's working directory to exactly this directory, so batchRunCmd
// reads it from ".".
const batchRunFile = "run.json"

type batchRunConfig struct {
	WorkspaceRoot string `json:"workspaceRoot"`
	SessionID     string `json:"sessionId"`
	ConfigPath    string `json:"configPath"`
}

func writeBatchRunFile(dir string, cfg batchRunConfig) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating batch directory %s", dir)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling batch run file")
	}
	return os.WriteFile(filepath.Join(dir, batchRunFile), data, 0o644)
}

func readBatchRunFile(dir string) (batchRunConfig, error) {
	var cfg batchRunConfig
	data, err := os.ReadFile(filepath.Join(dir, batchRunFile))
	if err != nil {
		return cfg, errors.Wrap(err, "reading batch run file")
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parsing batch run file")
	}
	return cfg, nil
}
