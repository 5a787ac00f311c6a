package tensor

import "fmt"

// MaxPool1D takes the maximum of each window of the last dimension of t,
// independently for every leading index.
//
// Input shape: (..., length)
// Output shape: (..., outLength) where outLength = (length-kernel)/stride + 1,
// floored. A trailing window shorter than kernel is dropped, so an input
// shorter than kernel yields a zero-length output.
func MaxPool1D(t *Tensor, kernel, stride int) (*Tensor, error) {
	if len(t.Shape) == 0 {
		return nil, fmt.Errorf("cannot pool a scalar tensor")
	}
	if kernel <= 0 || stride <= 0 {
		return nil, fmt.Errorf("invalid pooling kernel %d / stride %d", kernel, stride)
	}

	length := t.Shape[len(t.Shape)-1]
	outLength := 0
	if length >= kernel {
		outLength = (length-kernel)/stride + 1
	}

	outShape := copyShape(t.Shape)
	outShape[len(outShape)-1] = outLength
	result := NewTensor(outShape)
	if outLength == 0 {
		return result, nil
	}

	rows := len(t.Data) / length
	for r := 0; r < rows; r++ {
		src := t.Data[r*length : (r+1)*length]
		dst := result.Data[r*outLength : (r+1)*outLength]
		for o := range dst {
			start := o * stride
			best := src[start]
			for _, v := range src[start+1 : start+kernel] {
				if v > best {
					best = v
				}
			}
			dst[o] = best
		}
	}

	return result, nil
}
