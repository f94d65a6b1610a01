package pattern

import (
	"fmt"
	"strings"

	"github.com/kestrelfi/patternrunner/capability"
	"github.com/kestrelfi/patternrunner/core"
	"github.com/kestrelfi/patternrunner/template"
)

// Validate runs the full schema and reference check suite against one
// pattern, given the populated Capability Registry. It returns a single
// EngineError naming the pattern id and offending field on the first
// failure.
func Validate(p *Pattern, registry *capability.Registry) error {
	fail := func(field, msg string) error {
		return core.NewEngineError(core.KindInvalidInput, "pattern.Validate", fmt.Sprintf("%s: %s", field, msg), core.ErrInvalidInput).
			WithPattern(p.ID)
	}

	if p.ID == "" {
		return fail("id", "required")
	}
	if p.Version == "" {
		return fail("version", "required")
	}
	if p.Outputs == nil {
		return fail("outputs", "required (may be empty)")
	}

	if len(p.Steps) > core.MaxStepsPerPattern {
		return fail("steps", fmt.Sprintf("pattern has %d steps, exceeds limit %d", len(p.Steps), core.MaxStepsPerPattern))
	}

	seenNames := make(map[string]bool)
	seenSaveAs := make(map[string]bool)
	groupWidth := make(map[string]int)
	stepIndexByName := make(map[string]int)

	for i, step := range p.Steps {
		if step.Name == "" {
			return fail(fmt.Sprintf("steps[%d].name", i), "required")
		}
		if seenNames[step.Name] {
			return fail(fmt.Sprintf("steps[%d].name", i), fmt.Sprintf("duplicate step name %q", step.Name))
		}
		seenNames[step.Name] = true
		stepIndexByName[step.Name] = i

		saveAs := step.EffectiveSaveAs()
		if seenSaveAs[saveAs] {
			return fail(fmt.Sprintf("steps[%d].save_as", i), fmt.Sprintf("duplicate save_as %q", saveAs))
		}
		seenSaveAs[saveAs] = true

		if step.Capability == "" {
			return fail(fmt.Sprintf("steps[%d].capability", i), "required")
		}
		if registry != nil {
			if _, err := registry.Resolve(step.Capability); err != nil {
				return fail(fmt.Sprintf("steps[%d].capability", i), fmt.Sprintf("capability %q not registered", step.Capability))
			}
		}

		if step.ParallelGroup != "" {
			groupWidth[step.ParallelGroup]++
		}

		if err := validateStepReferences(p, i, step); err != nil {
			return err
		}
	}

	for group, width := range groupWidth {
		if width > core.MaxParallelGroupWidth {
			return fail("parallel_group", fmt.Sprintf("group %q has width %d, exceeds limit %d", group, width, core.MaxParallelGroupWidth))
		}
	}

	for outName, tmpl := range p.Outputs {
		for _, path := range template.StaticPaths(tmpl) {
			if err := checkPathResolvable(p, len(p.Steps), path); err != nil {
				return fail(fmt.Sprintf("outputs.%s", outName), err.Error())
			}
		}
	}

	return nil
}

// validateStepReferences enforces the invariant that every
// {{step.field}} reference names a step appearing earlier in the sequence
// (or inputs.*/ctx.*), and that references across a parallel
// group are invalid.
func validateStepReferences(p *Pattern, stepIndex int, step Step) error {
	paths := template.StaticPaths(step.Args)
	if step.Condition != "" {
		paths = append(paths, template.StaticPaths(step.Condition)...)
	}

	for _, path := range paths {
		if err := checkPathResolvable(p, stepIndex, path); err != nil {
			return core.NewEngineError(core.KindInvalidInput, "pattern.Validate",
				fmt.Sprintf("steps[%d] (%s): %s", stepIndex, step.Name, err.Error()), core.ErrInvalidInput).
				WithPattern(p.ID).WithStep(step.Name)
		}
	}
	return nil
}

// checkPathResolvable reports an error if path's leading segment names a
// step that does not appear strictly before stepIndex in declaration
// order, or that shares stepIndex's parallel group.
func checkPathResolvable(p *Pattern, stepIndex int, path string) error {
	head := strings.SplitN(path, ".", 2)[0]
	if head == "inputs" || head == "ctx" || head == "state" {
		return nil
	}

	for j, other := range p.Steps {
		if other.EffectiveSaveAs() != head {
			continue
		}
		if j >= stepIndex {
			return fmt.Errorf("reference to step %q does not precede this step", head)
		}
		if stepIndex < len(p.Steps) && other.ParallelGroup != "" && other.ParallelGroup == p.Steps[stepIndex].ParallelGroup {
			return fmt.Errorf("reference to step %q is invalid: both steps share parallel_group %q", head, other.ParallelGroup)
		}
		return nil
	}

	return fmt.Errorf("reference to unknown step %q", head)
}
