// Package tensor provides the dense tensor type and the numerical kernels used
// by the sequence model layers.
//
// Tensors are row-major float32 arrays. Sequence data is carried either as
// (batch, channels, time) for the convolutional stage or as
// (batch, time, features) for the recurrent and attention stages.
package tensor

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrShapeMismatch is wrapped by every error caused by incompatible tensor
// shapes, so callers can test for it with errors.Is.
var ErrShapeMismatch = errors.New("shape mismatch")

// Tensor represents a multi-dimensional array of float32 values.
// It stores data in a flat slice with shape information for indexing.
type Tensor struct {
	Data    []float32 // Flattened data storage
	Shape   []int     // Dimensions (e.g., [batch, channels, time])
	Strides []int     // Precomputed strides for indexing
}

// NewTensor creates a new tensor with the given shape, initialized to zeros.
func NewTensor(shape []int) *Tensor {
	return &Tensor{
		Data:    make([]float32, numElements(shape)),
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}
}

// FromSlice creates a tensor from existing data with the given shape.
// The data is copied. Returns an error if data size doesn't match the shape.
func FromSlice(data []float32, shape []int) (*Tensor, error) {
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
	}
	expected := numElements(shape)
	if len(data) != expected {
		return nil, fmt.Errorf("%w: data size %d does not match shape %v (expected %d elements)",
			ErrShapeMismatch, len(data), shape, expected)
	}

	t := NewTensor(shape)
	copy(t.Data, data)
	return t, nil
}

// Full creates a tensor of the given shape with every element set to value.
func Full(shape []int, value float32) *Tensor {
	t := NewTensor(shape)
	for i := range t.Data {
		t.Data[i] = value
	}
	return t
}

// View returns a new tensor with a different shape but sharing the same underlying data.
func (t *Tensor) View(newShape []int) (*Tensor, error) {
	for _, dim := range newShape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, newShape)
		}
	}
	if n := numElements(newShape); n != len(t.Data) {
		return nil, fmt.Errorf("%w: cannot view tensor of size %d as shape %v (total size %d)",
			ErrShapeMismatch, len(t.Data), newShape, n)
	}

	return &Tensor{
		Data:    t.Data,
		Shape:   copyShape(newShape),
		Strides: computeStrides(newShape),
	}, nil
}

// Reshape returns a view with a different shape (same underlying data).
// It panics if the element count differs.
func (t *Tensor) Reshape(newShape []int) *Tensor {
	result, err := t.View(newShape)
	if err != nil {
		panic(err)
	}
	return result
}

// Transpose exchanges two dimensions of the tensor and returns a contiguous copy.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	rank := len(t.Shape)
	if dim1 < 0 || dim1 >= rank || dim2 < 0 || dim2 >= rank {
		return nil, fmt.Errorf("invalid transpose dimensions %d and %d for tensor with %d dimensions",
			dim1, dim2, rank)
	}
	if dim1 == dim2 {
		return t.Clone(), nil
	}

	newShape := copyShape(t.Shape)
	newShape[dim1], newShape[dim2] = newShape[dim2], newShape[dim1]
	result := NewTensor(newShape)
	if len(t.Data) == 0 {
		return result, nil
	}

	// Walk the destination in order; srcStrides maps each destination axis
	// back onto the source layout.
	srcStrides := copyShape(t.Strides)
	srcStrides[dim1], srcStrides[dim2] = srcStrides[dim2], srcStrides[dim1]

	idx := make([]int, rank)
	src := 0
	for dst := range result.Data {
		result.Data[dst] = t.Data[src]
		for ax := rank - 1; ax >= 0; ax-- {
			idx[ax]++
			src += srcStrides[ax]
			if idx[ax] < newShape[ax] {
				break
			}
			src -= idx[ax] * srcStrides[ax]
			idx[ax] = 0
		}
	}

	return result, nil
}

// Size returns the total number of elements in the tensor.
func (t *Tensor) Size() int {
	return numElements(t.Shape)
}

// NumDims returns the number of dimensions (rank) of the tensor.
func (t *Tensor) NumDims() int {
	return len(t.Shape)
}

// FlatIndex converts multi-dimensional indices to a flat index.
func (t *Tensor) FlatIndex(indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("indices length %d does not match shape dimensions %d",
			len(indices), len(t.Shape)))
	}

	idx := 0
	for i := range t.Shape {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d with size %d",
				indices[i], i, t.Shape[i]))
		}
		idx += indices[i] * t.Strides[i]
	}
	return idx
}

// Get retrieves a value at the specified indices.
func (t *Tensor) Get(indices ...int) float32 {
	return t.Data[t.FlatIndex(indices)]
}

// Set sets a value at the specified indices.
func (t *Tensor) Set(value float32, indices ...int) {
	t.Data[t.FlatIndex(indices)] = value
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	c := NewTensor(t.Shape)
	copy(c.Data, t.Data)
	return c
}

// ShapeString returns a string representation of the shape.
func (t *Tensor) ShapeString() string {
	return fmt.Sprintf("%v", t.Shape)
}

// HasShape reports whether the tensor has exactly the given shape.
func (t *Tensor) HasShape(shape ...int) bool {
	return shapesEqual(t.Shape, shape)
}

// ShapeEquals checks if two tensors have the same shape.
func (t *Tensor) ShapeEquals(other *Tensor) bool {
	return shapesEqual(t.Shape, other.Shape)
}

// Equals checks if two tensors have the same shape and approximately equal values.
func (t *Tensor) Equals(other *Tensor, tolerance float32) bool {
	if !t.ShapeEquals(other) {
		return false
	}
	for i := range t.Data {
		if math.Abs(float64(t.Data[i]-other.Data[i])) > float64(tolerance) {
			return false
		}
	}
	return true
}

// Scale multiplies all elements by a scalar and returns a new tensor.
func (t *Tensor) Scale(s float32) *Tensor {
	result := NewTensor(t.Shape)
	for i, v := range t.Data {
		result.Data[i] = v * s
	}
	return result
}

// Softmax applies a numerically stable softmax along the specified dimension.
func Softmax(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("invalid dimension %d for tensor with %d dimensions", dim, len(t.Shape))
	}

	result := NewTensor(t.Shape)
	n := t.Shape[dim]
	if n == 0 || len(t.Data) == 0 {
		return result, nil
	}
	inner := t.Strides[dim]
	outer := len(t.Data) / (n * inner)

	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*n*inner + in

			maxVal := float32(math.Inf(-1))
			for i := 0; i < n; i++ {
				if v := t.Data[base+i*inner]; v > maxVal {
					maxVal = v
				}
			}

			var sum float32
			for i := 0; i < n; i++ {
				e := float32(math.Exp(float64(t.Data[base+i*inner] - maxVal)))
				result.Data[base+i*inner] = e
				sum += e
			}
			for i := 0; i < n; i++ {
				result.Data[base+i*inner] /= sum
			}
		}
	}

	return result, nil
}

// SoftmaxLast applies softmax along the last dimension.
func SoftmaxLast(t *Tensor) (*Tensor, error) {
	return Softmax(t, len(t.Shape)-1)
}

// Concatenate concatenates tensors along a dimension.
func Concatenate(tensors []*Tensor, dim int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("cannot concatenate empty list of tensors")
	}
	rank := len(tensors[0].Shape)
	if dim < 0 || dim >= rank {
		return nil, fmt.Errorf("invalid dimension %d for tensor with %d dimensions", dim, rank)
	}

	outShape := copyShape(tensors[0].Shape)
	outShape[dim] = 0
	for i, t := range tensors {
		if len(t.Shape) != rank {
			return nil, fmt.Errorf("%w: tensor %d has %d dimensions, expected %d",
				ErrShapeMismatch, i, len(t.Shape), rank)
		}
		for j := range outShape {
			if j != dim && t.Shape[j] != tensors[0].Shape[j] {
				return nil, fmt.Errorf("%w: tensor %d has shape %v, incompatible with %v at dimension %d",
					ErrShapeMismatch, i, t.Shape, tensors[0].Shape, j)
			}
		}
		outShape[dim] += t.Shape[dim]
	}

	result := NewTensor(outShape)
	outer := numElements(outShape[:dim])
	dstRow := numElements(outShape[dim:])

	offset := 0
	for _, t := range tensors {
		chunk := numElements(t.Shape[dim:])
		for o := 0; o < outer; o++ {
			copy(result.Data[o*dstRow+offset:o*dstRow+offset+chunk], t.Data[o*chunk:(o+1)*chunk])
		}
		offset += chunk
	}

	return result, nil
}

// String returns a string representation of the tensor.
func (t *Tensor) String() string {
	var sb strings.Builder
	sb.WriteString("Tensor")
	sb.WriteString(t.ShapeString())
	sb.WriteString(": ")
	if len(t.Data) == 0 {
		sb.WriteString("[]")
		return sb.String()
	}
	sb.WriteString(formatData(t.Shape, t.Data, 0))
	return sb.String()
}

// formatData recursively formats tensor data, eliding long axes.
func formatData(shape []int, data []float32, offset int) string {
	if len(shape) == 0 {
		return fmt.Sprintf("%g", data[offset])
	}

	limit := 3
	if len(shape) == 1 {
		limit = 6
	}
	sub := numElements(shape[1:])

	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < shape[0] && i < limit; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		if len(shape) == 1 {
			sb.WriteString(fmt.Sprintf("%g", data[offset+i]))
		} else {
			sb.WriteString(formatData(shape[1:], data, offset+i*sub))
		}
	}
	if shape[0] > limit {
		sb.WriteString(", ...")
	}
	sb.WriteString("]")
	return sb.String()
}

func numElements(shape []int) int {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return size
}

func computeStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// copyShape creates a copy of a shape slice
func copyShape(shape []int) []int {
	result := make([]int, len(shape))
	copy(result, shape)
	return result
}
