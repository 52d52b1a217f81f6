package condition

import (
	"errors"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

var errNotBool = errors.New("condition: expression did not evaluate to a boolean")

// Run executes a compiled program against env.
func Run(program *vm.Program, env interface{}) (interface{}, error) {
	return expr.Run(program, env)
}
