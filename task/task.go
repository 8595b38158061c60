// Package task defines the immutable input operands of a pipeline.
package task

import (
	"fmt"

	"github.com/xraph/choreo/step"
)

// Task holds one operand per supported step kind. It is created once by
// the producer and never mutated by workers.
type Task struct {
	ID            string `json:"id"`
	OperandSquare int64  `json:"operand_square"`
	OperandCube   int64  `json:"operand_cube"`
	OperandQuad   int64  `json:"operand_quad"`
}

// New creates a task with the given identifier and the same operand for
// every step kind.
func New(taskID string, operand int64) *Task {
	return &Task{
		ID:            taskID,
		OperandSquare: operand,
		OperandCube:   operand,
		OperandQuad:   operand,
	}
}

// Operand returns the operand consumed by the given step kind.
func (t *Task) Operand(k step.Kind) (int64, error) {
	switch k {
	case step.Square:
		return t.OperandSquare, nil
	case step.Cube:
		return t.OperandCube, nil
	case step.Quad:
		return t.OperandQuad, nil
	default:
		return 0, fmt.Errorf("task %s: no operand for step %q", t.ID, k)
	}
}
