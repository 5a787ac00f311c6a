package tensor

import (
	"errors"
	"math"
	"strings"
	"testing"
)

// TestNewTensor tests tensor creation
func TestNewTensor(t *testing.T) {
	tests := []struct {
		name     string
		shape    []int
		expected int
	}{
		{"1D", []int{5}, 5},
		{"2D", []int{3, 4}, 12},
		{"3D", []int{2, 3, 4}, 24},
		{"zero length axis", []int{2, 0, 4}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor := NewTensor(tt.shape)

			if !tensor.HasShape(tt.shape...) {
				t.Errorf("Expected shape %v, got %v", tt.shape, tensor.Shape)
			}
			if len(tensor.Data) != tt.expected {
				t.Errorf("Expected data length %d, got %d", tt.expected, len(tensor.Data))
			}
			for i, v := range tensor.Data {
				if v != 0 {
					t.Errorf("Expected zero at index %d, got %f", i, v)
				}
			}
		})
	}
}

// TestFromSlice tests creating tensor from slice
func TestFromSlice(t *testing.T) {
	tests := []struct {
		name      string
		data      []float32
		shape     []int
		wantErr   bool
		errString string
	}{
		{name: "valid 2D", data: []float32{1, 2, 3, 4, 5, 6}, shape: []int{2, 3}},
		{name: "valid 3D", data: []float32{1, 2, 3, 4, 5, 6, 7, 8}, shape: []int{2, 2, 2}},
		{
			name:      "size mismatch",
			data:      []float32{1, 2, 3},
			shape:     []int{2, 3},
			wantErr:   true,
			errString: "data size 3 does not match shape",
		},
		{
			name:      "negative dimension",
			data:      []float32{1, 2, 3, 4},
			shape:     []int{2, -2},
			wantErr:   true,
			errString: "invalid dimension",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, err := FromSlice(tt.data, tt.shape)

			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errString) {
					t.Errorf("Expected error containing %q, got %q", tt.errString, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			// FromSlice must copy
			tt.data[0] = 100
			if tensor.Data[0] == 100 {
				t.Error("FromSlice shares memory with the input slice")
			}
		})
	}
}

func TestFromSlice_ShapeMismatchSentinel(t *testing.T) {
	_, err := FromSlice([]float32{1, 2, 3}, []int{2, 2})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

// TestView tests tensor reshaping
func TestView(t *testing.T) {
	tensor, _ := FromSlice([]float32{1, 2, 3, 4, 5, 6}, []int{2, 3})

	view, err := tensor.View([]int{3, 2})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if !view.HasShape(3, 2) {
		t.Errorf("Expected shape [3 2], got %v", view.Shape)
	}
	if view.Strides[0] != 2 || view.Strides[1] != 1 {
		t.Errorf("Expected strides [2 1], got %v", view.Strides)
	}

	// Views share storage
	view.Data[0] = 42
	if tensor.Data[0] != 42 {
		t.Error("View should share data with the original tensor")
	}

	if _, err := tensor.View([]int{4, 2}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for bad view, got %v", err)
	}
}

// TestTranspose tests exchanging two axes
func TestTranspose(t *testing.T) {
	tests := []struct {
		name     string
		data     []float32
		shape    []int
		dim1     int
		dim2     int
		expShape []int
		expData  []float32
	}{
		{
			name:     "2D",
			data:     []float32{1, 2, 3, 4, 5, 6},
			shape:    []int{2, 3},
			dim1:     0,
			dim2:     1,
			expShape: []int{3, 2},
			expData:  []float32{1, 4, 2, 5, 3, 6},
		},
		{
			// (batch=2, channels=2, time=3) -> (batch, time, channels)
			name:     "3D channels to time-major",
			data:     []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
			shape:    []int{2, 2, 3},
			dim1:     1,
			dim2:     2,
			expShape: []int{2, 3, 2},
			expData:  []float32{1, 4, 2, 5, 3, 6, 7, 10, 8, 11, 9, 12},
		},
		{
			name:     "3D outer axes",
			data:     []float32{1, 2, 3, 4, 5, 6, 7, 8},
			shape:    []int{2, 2, 2},
			dim1:     0,
			dim2:     2,
			expShape: []int{2, 2, 2},
			expData:  []float32{1, 5, 3, 7, 2, 6, 4, 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, _ := FromSlice(tt.data, tt.shape)
			result, err := tensor.Transpose(tt.dim1, tt.dim2)
			if err != nil {
				t.Fatalf("Transpose failed: %v", err)
			}
			if !result.HasShape(tt.expShape...) {
				t.Fatalf("Expected shape %v, got %v", tt.expShape, result.Shape)
			}
			for i := range tt.expData {
				if result.Data[i] != tt.expData[i] {
					t.Errorf("Data[%d] = %f, expected %f", i, result.Data[i], tt.expData[i])
				}
			}
		})
	}
}

func TestTranspose_RoundTrip(t *testing.T) {
	tensor := NewTensor([]int{3, 4, 5})
	for i := range tensor.Data {
		tensor.Data[i] = float32(i)
	}
	once, _ := tensor.Transpose(1, 2)
	twice, _ := once.Transpose(1, 2)
	if !twice.Equals(tensor, 0) {
		t.Error("Transposing twice should restore the original tensor")
	}
}

func TestTranspose_InvalidDims(t *testing.T) {
	tensor := NewTensor([]int{2, 3})
	if _, err := tensor.Transpose(0, 2); err == nil {
		t.Error("Expected error for out-of-range dimension")
	}
}

// TestMatmul tests matrix multiplication and broadcasting rules
func TestMatmul(t *testing.T) {
	tests := []struct {
		name     string
		aData    []float32
		aShape   []int
		bData    []float32
		bShape   []int
		expShape []int
		expData  []float32
	}{
		{
			name:     "2D x 2D",
			aData:    []float32{1, 2, 3, 4, 5, 6},
			aShape:   []int{2, 3},
			bData:    []float32{7, 8, 9, 10, 11, 12},
			bShape:   []int{3, 2},
			expShape: []int{2, 2},
			expData:  []float32{58, 64, 139, 154},
		},
		{
			name:     "3D x 2D broadcast",
			aData:    []float32{1, 2, 3, 4, 5, 6, 7, 8},
			aShape:   []int{2, 2, 2},
			bData:    []float32{1, 0, 0, 2},
			bShape:   []int{2, 2},
			expShape: []int{2, 2, 2},
			expData:  []float32{1, 4, 3, 8, 5, 12, 7, 16},
		},
		{
			name:     "2D x 3D broadcast",
			aData:    []float32{1, 1},
			aShape:   []int{1, 2},
			bData:    []float32{1, 2, 3, 4, 5, 6, 7, 8},
			bShape:   []int{2, 2, 2},
			expShape: []int{2, 1, 2},
			expData:  []float32{4, 6, 12, 14},
		},
		{
			name:     "batched 3D x 3D",
			aData:    []float32{1, 2, 3, 4},
			aShape:   []int{2, 1, 2},
			bData:    []float32{1, 0, 0, 1, 2, 0, 0, 2},
			bShape:   []int{2, 2, 2},
			expShape: []int{2, 1, 2},
			expData:  []float32{1, 2, 6, 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := FromSlice(tt.aData, tt.aShape)
			b, _ := FromSlice(tt.bData, tt.bShape)

			result, err := Matmul(a, b)
			if err != nil {
				t.Fatalf("Matmul failed: %v", err)
			}
			if !result.HasShape(tt.expShape...) {
				t.Fatalf("Expected shape %v, got %v", tt.expShape, result.Shape)
			}
			for i := range tt.expData {
				if math.Abs(float64(result.Data[i]-tt.expData[i])) > 1e-5 {
					t.Errorf("Data[%d] = %f, expected %f", i, result.Data[i], tt.expData[i])
				}
			}
		})
	}
}

func TestMatmul_Errors(t *testing.T) {
	tests := []struct {
		name   string
		aShape []int
		bShape []int
	}{
		{"1D operand", []int{3}, []int{3, 2}},
		{"inner mismatch", []int{2, 3}, []int{4, 2}},
		{"batch mismatch", []int{2, 2, 3}, []int{3, 3, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Matmul(NewTensor(tt.aShape), NewTensor(tt.bShape))
			if !errors.Is(err, ErrShapeMismatch) {
				t.Errorf("Expected ErrShapeMismatch, got %v", err)
			}
		})
	}
}

func TestMatmulTransposed(t *testing.T) {
	a, _ := FromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8}, []int{2, 2, 2})

	got, err := MatmulTransposed(a, a)
	if err != nil {
		t.Fatalf("MatmulTransposed failed: %v", err)
	}

	aT, _ := a.Transpose(1, 2)
	want, _ := Matmul(a, aT)
	if !got.Equals(want, 1e-5) {
		t.Errorf("MatmulTransposed = %v, expected %v", got, want)
	}
}

func TestMatmul_ZeroLength(t *testing.T) {
	// (batch=2, seq=0, d=3) @ (3, 4) -> (2, 0, 4)
	result, err := Matmul(NewTensor([]int{2, 0, 3}), NewTensor([]int{3, 4}))
	if err != nil {
		t.Fatalf("Matmul failed: %v", err)
	}
	if !result.HasShape(2, 0, 4) {
		t.Errorf("Expected shape [2 0 4], got %v", result.Shape)
	}
}

// TestSoftmax tests softmax along different axes
func TestSoftmax(t *testing.T) {
	tensor, _ := FromSlice([]float32{1, 2, 3, 1, 1, 1}, []int{2, 3})

	result, err := Softmax(tensor, 1)
	if err != nil {
		t.Fatalf("Softmax failed: %v", err)
	}

	// softmax([1,2,3]) = [0.0900, 0.2447, 0.6652]
	expected := []float32{0.0900, 0.2447, 0.6652, 1.0 / 3, 1.0 / 3, 1.0 / 3}
	for i := range expected {
		if math.Abs(float64(result.Data[i]-expected[i])) > 1e-4 {
			t.Errorf("Data[%d] = %f, expected %f", i, result.Data[i], expected[i])
		}
	}

	// Along dim 0 each column sums to 1
	cols, err := Softmax(tensor, 0)
	if err != nil {
		t.Fatalf("Softmax failed: %v", err)
	}
	for c := 0; c < 3; c++ {
		sum := cols.Get(0, c) + cols.Get(1, c)
		if math.Abs(float64(sum-1)) > 1e-6 {
			t.Errorf("Column %d sums to %f, expected 1", c, sum)
		}
	}

	if _, err := Softmax(tensor, 2); err == nil {
		t.Error("Expected error for invalid dimension")
	}
}

func TestSoftmaxNumericalStability(t *testing.T) {
	tensor, _ := FromSlice([]float32{1000, 1001, 1002}, []int{1, 3})

	result, err := SoftmaxLast(tensor)
	if err != nil {
		t.Fatalf("Softmax failed: %v", err)
	}
	for i, v := range result.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Errorf("Data[%d] = %f is not finite", i, v)
		}
	}
	if math.Abs(float64(result.Data[2]-0.6652)) > 1e-4 {
		t.Errorf("Expected largest probability 0.6652, got %f", result.Data[2])
	}
}

func TestScale(t *testing.T) {
	tensor, _ := FromSlice([]float32{1, -2, 3}, []int{3})
	result := tensor.Scale(0.5)

	expected := []float32{0.5, -1, 1.5}
	for i := range expected {
		if result.Data[i] != expected[i] {
			t.Errorf("Data[%d] = %f, expected %f", i, result.Data[i], expected[i])
		}
	}
	if tensor.Data[0] != 1 {
		t.Error("Scale must not modify its input")
	}
}

// TestConcatenate tests joining tensors along inner and outer axes
func TestConcatenate(t *testing.T) {
	a, _ := FromSlice([]float32{1, 2, 3, 4}, []int{2, 1, 2})
	b, _ := FromSlice([]float32{5, 6, 7, 8}, []int{2, 1, 2})

	last, err := Concatenate([]*Tensor{a, b}, 2)
	if err != nil {
		t.Fatalf("Concatenate failed: %v", err)
	}
	if !last.HasShape(2, 1, 4) {
		t.Fatalf("Expected shape [2 1 4], got %v", last.Shape)
	}
	expected := []float32{1, 2, 5, 6, 3, 4, 7, 8}
	for i := range expected {
		if last.Data[i] != expected[i] {
			t.Errorf("Data[%d] = %f, expected %f", i, last.Data[i], expected[i])
		}
	}

	first, err := Concatenate([]*Tensor{a, b}, 0)
	if err != nil {
		t.Fatalf("Concatenate failed: %v", err)
	}
	if !first.HasShape(4, 1, 2) {
		t.Fatalf("Expected shape [4 1 2], got %v", first.Shape)
	}
	for i := 0; i < 8; i++ {
		if first.Data[i] != float32(i+1) {
			t.Errorf("Data[%d] = %f, expected %d", i, first.Data[i], i+1)
		}
	}

	c := NewTensor([]int{2, 2, 2})
	if _, err := Concatenate([]*Tensor{a, c}, 2); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

func TestGetSet(t *testing.T) {
	tensor := NewTensor([]int{2, 3, 4})
	tensor.Set(7, 1, 2, 3)

	if got := tensor.Get(1, 2, 3); got != 7 {
		t.Errorf("Get = %f, expected 7", got)
	}
	if tensor.Data[len(tensor.Data)-1] != 7 {
		t.Error("Set wrote to the wrong flat index")
	}
}

func TestString(t *testing.T) {
	tensor, _ := FromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8}, []int{8})
	s := tensor.String()

	if !strings.HasPrefix(s, "Tensor[8]") {
		t.Errorf("Unexpected prefix in %q", s)
	}
	if !strings.Contains(s, "...") {
		t.Errorf("Expected long axis to be elided in %q", s)
	}
	if got := NewTensor([]int{0}).String(); got != "Tensor[0]: []" {
		t.Errorf("Empty tensor formatted as %q", got)
	}
}
