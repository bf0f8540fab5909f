package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"

	"github.com/roach88/xqcore/internal/compiler"
	"github.com/roach88/xqcore/internal/config"
	"github.com/roach88/xqcore/internal/engine"
	"github.com/roach88/xqcore/internal/store"
)

// PlanSet holds the plans found under "plan.<name>" in a set of CUE files.
type PlanSet struct {
	Plans     map[string]cue.Value
	FileCount int
}

// Names returns the plan names in sorted order.
func (s *PlanSet) Names() []string {
	names := make([]string, 0, len(s.Plans))
	for name := range s.Plans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads the named plan into an untyped tree.
func (s *PlanSet) Load(name string) (*compiler.Plan, error) {
	v, ok := s.Plans[name]
	if !ok {
		return nil, &LoadError{Code: ErrCodeUnknownPlan, Message: fmt.Sprintf("no plan named %q", name)}
	}
	return compiler.LoadPlan(v)
}

// LoadError represents an error that occurred while reading plan files.
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

// LoadPlans reads every CUE file at path, a file or a directory, and
// collects the plans they declare. Plan names must be unique across files.
func LoadPlans(path string) (*PlanSet, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("plans not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing plans: %v", err)}
	}

	files := []string{path}
	if info.IsDir() {
		if files, err = FindCUEFiles(path); err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
	}

	cctx := cuecontext.New()
	set := &PlanSet{Plans: make(map[string]cue.Value), FileCount: len(files)}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", file, err)}
		}
		v := cctx.CompileBytes(data, cue.Filename(file))
		if err := v.Err(); err != nil {
			return nil, convertCUEError(err)
		}
		pv := v.LookupPath(cue.ParsePath("plan"))
		if !pv.Exists() {
			continue
		}
		iter, err := pv.Fields()
		if err != nil {
			return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("%s: plan must be a struct", file), Pos: pv.Pos()}
		}
		for iter.Next() {
			name := iter.Label()
			if _, dup := set.Plans[name]; dup {
				return nil, &LoadError{Code: ErrCodeDuplicatePlan, Message: fmt.Sprintf("duplicate plan %q", name), Pos: iter.Value().Pos()}
			}
			set.Plans[name] = iter.Value()
		}
	}
	if len(set.Plans) == 0 {
		return nil, &LoadError{Code: ErrCodeNoPlans, Message: fmt.Sprintf("no plans found in %s", path)}
	}
	return set, nil
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

// convertCUEError converts a CUE evaluation error to a LoadError with
// position info.
func convertCUEError(err error) *LoadError {
	var ce *compiler.CompileError
	if converted := compiler.FormatCUEError(err); errors.As(converted, &ce) {
		return &LoadError{Code: ErrCodeBuildFailed, Message: ce.Message, Pos: ce.Pos}
	}
	return &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeLoadFailed    = "E004" // File read failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeBuildFailed   = "E006" // CUE evaluation failed
	ErrCodeNoPlans       = "E007" // No plan struct in any file
	ErrCodeDuplicatePlan = "E008" // Plan name declared twice
	ErrCodeUnknownPlan   = "E009" // Requested plan does not exist
	ErrCodeConfig        = "E010" // Config or store setup failed
	ErrCodeBinding       = "E011" // Malformed --bind or --context
)

// environment is the engine and store a command runs against.
type environment struct {
	cfg    config.Config
	engine *engine.Engine
	store  *store.Store
}

// newEnvironment loads the configuration named by opts and builds the
// engine. Logs go to logs; --verbose lowers the level to debug.
func newEnvironment(opts *RootOptions, logs io.Writer) (*environment, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeConfig, Message: err.Error()}
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	env := &environment{cfg: cfg}
	engineOpts := append(cfg.EngineOptions(), engine.WithLogger(cfg.Logger(logs)))
	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeConfig, Message: fmt.Sprintf("open store: %v", err)}
		}
		env.store = st
		engineOpts = append(engineOpts, engine.WithCollections(st))
		if cfg.Store.Indexes {
			engineOpts = append(engineOpts, engine.WithIndexes(st))
		}
	}
	env.engine = engine.New(engineOpts...)
	return env, nil
}

// Close releases the store, if any.
func (env *environment) Close() error {
	if env.store == nil {
		return nil
	}
	return env.store.Close()
}

// loadErrorCode returns the code of a LoadError, or ErrCodeGeneric.
func loadErrorCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrCodeGeneric
}
