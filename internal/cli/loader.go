package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/quarry/internal/compiler"
	"github.com/roach88/quarry/internal/schema"
)

// LoadResult contains the models compiled from a path.
type LoadResult struct {
	Models    []*schema.Descriptor
	FileCount int // Number of CUE files found
}

// LoadError represents an error that occurred while loading models.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadModels compiles the CUE models at path. A directory loads every .cue
// file in it as one instance; a file loads alone. Validation across models
// is left to the caller.
func LoadModels(path string) (*LoadResult, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("models path not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing models path: %v", err)}
	}

	dir, args := path, []string{"."}
	files := []string{path}
	if info.IsDir() {
		files, err = FindCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
	} else {
		dir, args = filepath.Dir(path), []string{"./" + filepath.Base(path)}
	}

	instances := load.Instances(args, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	models, err := compiler.CompileModels(value)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return &LoadResult{Models: models, FileCount: len(files)}, nil
}

// loadValidModels loads models and rejects any that fail validation.
func loadValidModels(path string) ([]*schema.Descriptor, error) {
	result, err := LoadModels(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading models", err)
	}
	if verrs := compiler.Validate(result.Models); len(verrs) > 0 {
		return nil, WrapExitError(ExitFailure, "invalid models", verrs[0])
	}
	return result.Models, nil
}

// findModel returns the descriptor named model.
func findModel(models []*schema.Descriptor, model string) (*schema.Descriptor, error) {
	names := make([]string, 0, len(models))
	for _, d := range models {
		if d.Model() == model {
			return d, nil
		}
		names = append(names, d.Model())
	}
	return nil, NewExitError(ExitCommandError,
		fmt.Sprintf("unknown model %q (declared: %s)", model, strings.Join(names, ", ")))
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeDatabase    = "E008" // Database open or query failure

	// Model declaration errors
	ErrCodeNoModels     = "E010" // No model struct
	ErrCodeInvalidModel = "E011" // Bad table, key or descriptor
	ErrCodeInvalidField = "E012" // Missing or malformed fields
	ErrCodeInvalidType  = "E013" // Unknown field type
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "model":
		return ErrCodeNoModels
	case strings.HasPrefix(field, "model."), field == "table", field == "key":
		return ErrCodeInvalidModel
	case strings.HasSuffix(field, ".type"):
		return ErrCodeInvalidType
	case field == "fields", strings.HasPrefix(field, "fields."):
		return ErrCodeInvalidField
	default:
		return ErrCodeGeneric
	}
}
