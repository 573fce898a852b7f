// Package status evaluates the install's condition through a strictly
// ordered sequence of checks. Each step either lets evaluation continue
// or produces a terminal verdict, cheap structural checks running
// before content-hash checks so the common cases short-circuit early.
package status

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/distantorigin/vpklink/internal/fingerprint"
	"github.com/distantorigin/vpklink/internal/patch"
)

// Code is the terminal verdict of one evaluation.
type Code int

const (
	NotChecked Code = iota
	NotInstalled
	Disabled
	NeedUpdate
	Ready
	Error
)

func (c Code) String() string {
	switch c {
	case NotChecked:
		return "not-checked"
	case NotInstalled:
		return "not-installed"
	case Disabled:
		return "disabled"
	case NeedUpdate:
		return "need-update"
	case Ready:
		return "ready"
	case Error:
		return "error"
	}
	return "unknown"
}

// Action is the single recommended next step for a verdict.
type Action int

const (
	ActionNone Action = iota
	ActionInstall
	ActionEnable
	ActionUpdate
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionInstall:
		return "install"
	case ActionEnable:
		return "enable"
	case ActionUpdate:
		return "update"
	}
	return "unknown"
}

// Result is a terminal verdict with a plain-language description and
// the recommended action.
type Result struct {
	Code        Code
	Description string
	Action      Action
}

// StepResult is the explicit two-variant outcome of a pipeline step:
// either continue to the next check or stop with a terminal verdict.
type StepResult struct {
	terminal bool
	result   Result
}

// Continue lets evaluation proceed to the next step.
func Continue() StepResult {
	return StepResult{}
}

// Terminal stops evaluation with a verdict.
func Terminal(code Code, description string, action Action) StepResult {
	return StepResult{terminal: true, result: Result{Code: code, Description: description, Action: action}}
}

// Step is one check in the pipeline.
type Step func(ctx context.Context) (StepResult, error)

// Pipeline runs steps in order until one is terminal.
type Pipeline struct {
	steps  []Step
	logger *zap.Logger
}

// NewPipeline builds a pipeline from explicit steps.
func NewPipeline(logger *zap.Logger, steps ...Step) *Pipeline {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Pipeline{steps: steps, logger: logger}
}

// Evaluate runs the pipeline. A step error is itself terminal and
// surfaces as an Error verdict alongside the error.
func (p *Pipeline) Evaluate(ctx context.Context) (Result, error) {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return Result{Code: Error, Description: "evaluation cancelled", Action: ActionNone}, err
		}

		sr, err := step(ctx)
		if err != nil {
			return Result{
				Code:        Error,
				Description: "Status check failed; see log for details.",
				Action:      ActionNone,
			}, err
		}
		if sr.terminal {
			p.logger.Debug("status evaluated",
				zap.String("code", sr.result.Code.String()),
				zap.String("action", sr.result.Action.String()))
			return sr.result, nil
		}
	}

	// The default pipeline ends with an unconditional Ready step, so
	// falling off the end means a caller assembled a partial pipeline.
	return Result{Code: NotChecked, Description: "No checks produced a verdict.", Action: ActionNone}, nil
}

// Probes are the inputs the default pipeline inspects. Paths are
// relative to HostRoot.
type Probes struct {
	HostRoot      string
	RequiredFiles []string
	PackageFile   string
	Engine        *patch.Engine
	Fingerprints  *fingerprint.Service
}

// DefaultPipeline assembles the standard check order.
func DefaultPipeline(p Probes, logger *zap.Logger) *Pipeline {
	return NewPipeline(logger,
		hostConfiguredStep(p),
		requiredFilesStep(p),
		packagePresentStep(p),
		gameInfoMarkerStep(p),
		signatureMarkerStep(p),
		driftStep(p),
		readyStep(),
	)
}

func hostConfiguredStep(p Probes) Step {
	return func(ctx context.Context) (StepResult, error) {
		if p.HostRoot == "" {
			return Terminal(NotChecked, "No host path is configured.", ActionNone), nil
		}
		return Continue(), nil
	}
}

func requiredFilesStep(p Probes) Step {
	return func(ctx context.Context) (StepResult, error) {
		for _, name := range p.RequiredFiles {
			if _, err := os.Stat(filepath.Join(p.HostRoot, name)); err != nil {
				return Terminal(Error,
					fmt.Sprintf("Required host file is missing: %s.", name),
					ActionNone), nil
			}
		}
		return Continue(), nil
	}
}

func packagePresentStep(p Probes) Step {
	return func(ctx context.Context) (StepResult, error) {
		if _, err := os.Stat(filepath.Join(p.HostRoot, p.PackageFile)); err != nil {
			return Terminal(NotInstalled, "The content package is not installed.", ActionInstall), nil
		}
		return Continue(), nil
	}
}

func gameInfoMarkerStep(p Probes) Step {
	return func(ctx context.Context) (StepResult, error) {
		markers, err := p.Engine.Markers()
		if err != nil {
			return StepResult{}, err
		}
		if !markers.GameInfoPresent {
			return Terminal(Disabled, "The content package is installed but not enabled.", ActionEnable), nil
		}
		return Continue(), nil
	}
}

func signatureMarkerStep(p Probes) Step {
	return func(ctx context.Context) (StepResult, error) {
		markers, err := p.Engine.Markers()
		if err != nil {
			return StepResult{}, err
		}
		if !markers.SignaturePresent || !markers.SignatureCurrent {
			return Terminal(NeedUpdate, "The signature entry is missing or stale.", ActionUpdate), nil
		}
		return Continue(), nil
	}
}

func driftStep(p Probes) Step {
	return func(ctx context.Context) (StepResult, error) {
		current, err := p.Fingerprints.ReadCurrent()
		if err != nil {
			return StepResult{}, err
		}
		baseline, exists, err := p.Fingerprints.ReadBaseline()
		if err != nil {
			return StepResult{}, err
		}
		if !exists || fingerprint.NeedsRepatch(current, baseline) {
			return Terminal(NeedUpdate, "The host has changed since the last patch.", ActionUpdate), nil
		}
		return Continue(), nil
	}
}

func readyStep() Step {
	return func(ctx context.Context) (StepResult, error) {
		return Terminal(Ready, "The content package is installed and active.", ActionNone), nil
	}
}
