package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Matmul performs matrix multiplication on the last two dimensions.
// For tensors of shape (..., m, n) and (..., n, p), returns (..., m, p).
//
// A 2D right operand is broadcast over every leading dimension of the left
// operand, which is how linear projections are applied to sequences.
// A 2D left operand is likewise broadcast over a batched right operand.
func Matmul(a, b *Tensor) (*Tensor, error) {
	return matmul(a, b, false)
}

// MatmulTransposed computes a @ b^T on the last two dimensions without
// materializing the transpose. For (..., m, n) and (..., p, n), returns (..., m, p).
func MatmulTransposed(a, b *Tensor) (*Tensor, error) {
	return matmul(a, b, true)
}

func matmul(a, b *Tensor, transB bool) (*Tensor, error) {
	if len(a.Shape) < 2 || len(b.Shape) < 2 {
		return nil, fmt.Errorf("%w: matmul requires at least 2D tensors, got %dD and %dD",
			ErrShapeMismatch, len(a.Shape), len(b.Shape))
	}

	m, k := a.Shape[len(a.Shape)-2], a.Shape[len(a.Shape)-1]
	kb, p := b.Shape[len(b.Shape)-2], b.Shape[len(b.Shape)-1]
	if transB {
		kb, p = p, kb
	}
	if k != kb {
		return nil, fmt.Errorf("%w: incompatible shapes for matmul: %v and %v (inner dimensions %d and %d don't match)",
			ErrShapeMismatch, a.Shape, b.Shape, k, kb)
	}

	aBatch := a.Shape[:len(a.Shape)-2]
	bBatch := b.Shape[:len(b.Shape)-2]

	switch {
	case len(bBatch) == 0:
		// (..., m, k) @ (k, p): fold the leading dimensions into rows.
		rows := numElements(aBatch) * m
		result := NewTensor(append(copyShape(aBatch), m, p))
		Gemm(false, transB, rows, p, k, a.Data, b.Data, result.Data)
		return result, nil

	case len(aBatch) == 0:
		batch := numElements(bBatch)
		result := NewTensor(append(copyShape(bBatch), m, p))
		for i := 0; i < batch; i++ {
			Gemm(false, transB, m, p, k, a.Data,
				b.Data[i*k*p:(i+1)*k*p], result.Data[i*m*p:(i+1)*m*p])
		}
		return result, nil

	case shapesEqual(aBatch, bBatch):
		batch := numElements(aBatch)
		result := NewTensor(append(copyShape(aBatch), m, p))
		for i := 0; i < batch; i++ {
			Gemm(false, transB, m, p, k, a.Data[i*m*k:(i+1)*m*k],
				b.Data[i*k*p:(i+1)*k*p], result.Data[i*m*p:(i+1)*m*p])
		}
		return result, nil
	}

	return nil, fmt.Errorf("%w: batch dimensions %v and %v differ", ErrShapeMismatch, aBatch, bBatch)
}

// Gemm computes c = op(a) @ op(b) for row-major matrices, where op(a) is
// (m, k) and op(b) is (k, n). a is stored as (k, m) when transA is set and b
// as (n, k) when transB is set. c must hold m*n elements and is overwritten.
func Gemm(transA, transB bool, m, n, k int, a, b, c []float32) {
	GemmAcc(transA, transB, m, n, k, a, b, 0, c)
}

// GemmAcc computes c = op(a) @ op(b) + beta*c. See Gemm for the layout.
func GemmAcc(transA, transB bool, m, n, k int, a, b []float32, beta float32, c []float32) {
	if m == 0 || n == 0 {
		return
	}
	if k == 0 {
		for i := range c[:m*n] {
			c[i] *= beta
		}
		return
	}

	ta, ga := blas.NoTrans, blas32.General{Rows: m, Cols: k, Stride: k, Data: a}
	if transA {
		ta, ga = blas.Trans, blas32.General{Rows: k, Cols: m, Stride: m, Data: a}
	}
	tb, gb := blas.NoTrans, blas32.General{Rows: k, Cols: n, Stride: n, Data: b}
	if transB {
		tb, gb = blas.Trans, blas32.General{Rows: n, Cols: k, Stride: k, Data: b}
	}
	gc := blas32.General{Rows: m, Cols: n, Stride: n, Data: c}

	blas32.Gemm(ta, tb, 1, ga, gb, beta, gc)
}
