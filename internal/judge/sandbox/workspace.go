package sandbox

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"arbiter/internal/judge/model"
	appErr "arbiter/pkg/errors"
)

// Workspace is the single-use on-disk layout for one judging attempt. The
// box directory holds the source and compiled artifact shared read-only by
// every testcase run; each run gets its own writable directory underneath.
// Close removes the whole tree regardless of how the attempt ended.
type Workspace struct {
	Root    string
	BoxDir  string
	profile model.LanguageProfile
}

// NewWorkspace creates the attempt directory and writes the source file.
func NewWorkspace(workRoot string, profile model.LanguageProfile, sourceCode string) (*Workspace, error) {
	if workRoot == "" {
		return nil, appErr.ValidationError("workRoot", "required")
	}
	root := filepath.Join(workRoot, uuid.NewString())
	boxDir := filepath.Join(root, "box")
	if err := os.MkdirAll(boxDir, 0755); err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "create workspace failed")
	}
	w := &Workspace{Root: root, BoxDir: boxDir, profile: profile}
	if err := os.WriteFile(w.SourcePath(), []byte(sourceCode), 0644); err != nil {
		w.Close()
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "write source failed")
	}
	return w, nil
}

// SourcePath is the host path of the submitted source file.
func (w *Workspace) SourcePath() string {
	return filepath.Join(w.BoxDir, w.profile.SourceFileName)
}

// BinaryPath is the host path of the compiled artifact.
func (w *Workspace) BinaryPath() string {
	name := w.profile.BinaryFileName
	if name == "" {
		name = binaryFallback
	}
	return filepath.Join(w.BoxDir, name)
}

// NewRunDir creates a writable directory for one testcase run and stages its
// input. The returned cleanup removes the directory and must run on every
// exit path.
func (w *Workspace) NewRunDir(testID string, input []byte) (string, func(), error) {
	dir := filepath.Join(w.Root, "runs", testID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, appErr.Wrapf(err, appErr.InternalServerError, "create run dir failed")
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	if err := os.WriteFile(filepath.Join(dir, inputFileName), input, 0644); err != nil {
		cleanup()
		return "", nil, appErr.Wrapf(err, appErr.InternalServerError, "write input failed")
	}
	return dir, cleanup, nil
}

// Close deletes the workspace tree.
func (w *Workspace) Close() {
	if w.Root != "" {
		_ = os.RemoveAll(w.Root)
	}
}
