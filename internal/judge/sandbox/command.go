package sandbox

import (
	"strings"

	"github.com/google/shlex"

	"arbiter/internal/judge/model"
	appErr "arbiter/pkg/errors"
)

// buildCommand expands a command template into an argument vector. Templates
// reference {src} and {bin}; the result is exec'd directly, never through a
// shell.
func buildCommand(tpl, srcPath, binPath string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	expanded := strings.ReplaceAll(tpl, "{src}", srcPath)
	expanded = strings.ReplaceAll(expanded, "{bin}", binPath)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

// ValidateTemplates rejects malformed command templates before any sandbox
// work starts.
func ValidateTemplates(profile model.LanguageProfile) error {
	if _, err := buildCommand(profile.RunTemplate, "src", "bin"); err != nil {
		return err
	}
	if profile.HasCompile() {
		if _, err := buildCommand(profile.CompileTemplate, "src", "bin"); err != nil {
			return err
		}
	}
	return nil
}
