package cel

import (
	"path"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/Sentinel-Gate/docgate/internal/domain/policy"
)

// NewAccessEnvironment creates the CEL environment for access expressions.
// Variables: role, identity_id, email, path.
// Functions: glob(pattern, value), path_under(path, prefix).
func NewAccessEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("role", cel.StringType),
		cel.Variable("identity_id", cel.StringType),
		cel.Variable("email", cel.StringType),
		cel.Variable("path", cel.StringType),

		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, value ref.Val) ref.Val {
					p, ok1 := pattern.Value().(string)
					v, ok2 := value.Value().(string)
					if !ok1 || !ok2 {
						return types.Bool(false)
					}
					matched, _ := path.Match(p, v)
					return types.Bool(matched)
				}),
			),
		),

		// path_under: segment-aware prefix check, "/ref" does not match "/reference".
		cel.Function("path_under",
			cel.Overload("path_under_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pathVal, prefixVal ref.Val) ref.Val {
					p, ok1 := pathVal.Value().(string)
					prefix, ok2 := prefixVal.Value().(string)
					if !ok1 || !ok2 {
						return types.Bool(false)
					}
					return types.Bool(pathUnder(p, prefix))
				}),
			),
		),
	)
}

func pathUnder(p, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return strings.HasPrefix(p, "/")
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// buildActivation maps the evaluation context to CEL variables.
func buildActivation(evalCtx policy.EvaluationContext) map[string]any {
	return map[string]any{
		"role":        string(evalCtx.Role),
		"identity_id": evalCtx.IdentityID,
		"email":       evalCtx.Email,
		"path":        evalCtx.Path,
	}
}
