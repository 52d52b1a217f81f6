package condition

// EdgeEvaluator compiles and evaluates boolean edge-condition expressions
// against a node's resolved output, grounded on the teacher's
// evaluateEdgeCondition (expr-lang over an {output, node} environment).
type EdgeEvaluator struct {
	cache *Cache
}

// NewEdgeEvaluator returns an EdgeEvaluator with its own compiled-program
// cache.
func NewEdgeEvaluator() *EdgeEvaluator {
	return &EdgeEvaluator{cache: NewCache(200)}
}

// Evaluate runs expression against env {output, node}. An empty expression
// is unconditionally true.
func (e *EdgeEvaluator) Evaluate(expression string, nodeID string, output interface{}) (bool, error) {
	if expression == "" {
		return true, nil
	}

	env := map[string]interface{}{
		"output": output,
		"node":   nodeID,
	}

	program, err := e.cache.CompileAndCache(expression, env)
	if err != nil {
		return false, err
	}

	result, err := Run(program, env)
	if err != nil {
		return false, err
	}

	b, ok := result.(bool)
	if !ok {
		return false, errNotBool
	}
	return b, nil
}
