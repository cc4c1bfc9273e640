package runner

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	canary "github.com/sandialabs/canary/api/v1"
)

// caseMetadata is the per-test helper file written into the execution
// directory, exposing parameters and dependency ids to the subprocess
// without requiring it to parse the environment (spec.md §4.5 step 1).
type caseMetadata struct {
	Name          string                 `json:"name"`
	Family        string                 `json:"family"`
	Parameters    map[string]interface{} `json:"parameters"`
	DependencyIDs []string               `json:"dependencyIds"`
}

// metadataFileName is the name of the helper file written by PopulateDir.
const metadataFileName = "canary_case.json"

// PopulateDir creates tc.Dir, materializes its declared assets, and writes
// the per-test metadata helper file.
func PopulateDir(tc *canary.TestCase) error {
	if err := os.MkdirAll(tc.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating execution directory %s", tc.Dir)
	}

	for _, asset := range tc.Spec.Assets {
		dest := filepath.Join(tc.Dir, filepath.Base(asset.Source))
		if asset.Link {
			if err := os.Symlink(asset.Source, dest); err != nil {
				return errors.Wrapf(err, "linking asset %s", asset.Source)
			}
			continue
		}
		if err := copyPath(asset.Source, dest); err != nil {
			return errors.Wrapf(err, "copying asset %s", asset.Source)
		}
	}

	params := make(map[string]interface{}, len(tc.Spec.Parameters))
	for k, v := range tc.Spec.Parameters {
		params[k] = v.Native()
	}
	meta := caseMetadata{
		Name:          tc.Spec.CaseName(),
		Family:        tc.Spec.Family,
		Parameters:    params,
		DependencyIDs: tc.Spec.DependencyIDs,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling case metadata")
	}
	if err := os.WriteFile(filepath.Join(tc.Dir, metadataFileName), data, 0o644); err != nil {
		return errors.Wrap(err, "writing case metadata")
	}
	return nil
}

func copyPath(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyDir(src, dest, info)
	}
	return copyFile(src, dest, info)
}

func copyDir(src, dest string, info os.FileInfo) error {
	if err := os.MkdirAll(dest, info.Mode()); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		childInfo, err := entry.Info()
		if err != nil {
			return err
		}
		childSrc := filepath.Join(src, entry.Name())
		childDest := filepath.Join(dest, entry.Name())
		if childInfo.IsDir() {
			if err := copyDir(childSrc, childDest, childInfo); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(childSrc, childDest, childInfo); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dest string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
