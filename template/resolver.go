// Package template implements the Template Resolver: strict,
// expression-free substitution of {{path}} references against the
// execution state.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kestrelfi/patternrunner/core"
)

// pathPattern matches exactly one {{path}} template. Whitespace inside the
// braces is ignored.
var pathPattern = regexp.MustCompile(`^\{\{\s*([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)\s*\}\}$`)

// embeddedPattern finds every {{path}} occurrence inside a larger string,
// used for string coercion when the template is not the entire value.
var embeddedPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)\s*\}\}`)

// requiredPaths are the dotted paths that must not resolve to null.
var requiredPaths = map[string]bool{
	"ctx.pricing_pack_id":     true,
	"ctx.ledger_commit_hash": true,
}

// Root is the single lookup mapping the resolver walks paths against:
// {"inputs": ..., "ctx": ..., "state": <execution state, indexed by step
// name>}. Root is rebuilt by the orchestrator before resolving each step.
type Root struct {
	Inputs map[string]interface{}
	Ctx    map[string]interface{}
	State  map[string]interface{}
}

// Resolver resolves {{path}} references. It holds no state of its own:
// resolution is a pure function of the path and the root mapping, with
// no side effects or global reads.
type Resolver struct{}

// New returns a stateless Resolver.
func New() *Resolver {
	return &Resolver{}
}

// ResolveArgs walks every value in args, substituting {{path}} references
// against root. Values that are exactly one template retain their native
// type; values with an embedded template are coerced to string.
func (r *Resolver) ResolveArgs(root Root, args map[string]interface{}) (map[string]interface{}, error) {
	resolved := make(map[string]interface{}, len(args))
	for k, v := range args {
		rv, err := r.ResolveValue(root, v)
		if err != nil {
			return nil, err
		}
		resolved[k] = rv
	}
	return resolved, nil
}

// ResolveValue resolves a single arg value, recursing into nested
// mappings/sequences so a step's args may nest literal structures that
// themselves contain template references.
func (r *Resolver) ResolveValue(root Root, v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return r.resolveString(root, val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, nested := range val {
			rv, err := r.ResolveValue(root, nested)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, nested := range val {
			rv, err := r.ResolveValue(root, nested)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

func (r *Resolver) resolveString(root Root, s string) (interface{}, error) {
	if m := pathPattern.FindStringSubmatch(s); m != nil {
		return r.resolvePath(root, m[1])
	}

	if !strings.Contains(s, "{{") {
		return s, nil
	}

	var resolveErr error
	out := embeddedPattern.ReplaceAllStringFunc(s, func(match string) string {
		if resolveErr != nil {
			return match
		}
		sub := pathPattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		val, err := r.resolvePath(root, sub[1])
		if err != nil {
			resolveErr = err
			return match
		}
		return stringify(val)
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return out, nil
}

// resolvePath walks path against root, returning nil for any missing key,
// except for the required-context set which fails with RequiredContextMissing.
func (r *Resolver) resolvePath(root Root, path string) (interface{}, error) {
	segments := strings.Split(path, ".")

	var cur interface{}
	switch segments[0] {
	case "inputs":
		cur = root.Inputs
		segments = segments[1:]
	case "ctx":
		cur = root.Ctx
		segments = segments[1:]
	case "state":
		cur = root.State
		segments = segments[1:]
	default:
		// Bare step-name reference: {{step_name.field}} resolves
		// state[step_name]["field"].
		if root.State == nil {
			cur = nil
		} else {
			cur = root.State[segments[0]]
		}
		segments = segments[1:]
	}

	for _, seg := range segments {
		if cur == nil {
			break
		}
		m, ok := cur.(map[string]interface{})
		if !ok {
			cur = nil
			break
		}
		cur = m[seg]
	}

	if requiredPaths[path] {
		if s, ok := cur.(string); cur == nil || (ok && s == "") {
			return nil, core.NewEngineError(core.KindRequiredContextMissing, "template.Resolve",
				fmt.Sprintf("required path %q resolved to null", path), core.ErrRequiredContextMissing)
		}
	}

	return cur, nil
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// StaticPaths returns every {{path}} reference found in v, used by the
// Pattern Loader for load-time static validation without performing
// any actual resolution.
func StaticPaths(v interface{}) []string {
	var out []string
	collectPaths(v, &out)
	return out
}

func collectPaths(v interface{}, out *[]string) {
	switch val := v.(type) {
	case string:
		for _, m := range embeddedPattern.FindAllStringSubmatch(val, -1) {
			*out = append(*out, m[1])
		}
	case map[string]interface{}:
		for _, nested := range val {
			collectPaths(nested, out)
		}
	case []interface{}:
		for _, nested := range val {
			collectPaths(nested, out)
		}
	}
}
