package tensor

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

func general(m *Mat) blas32.General {
	stride := m.Stride
	if stride < m.C {
		stride = m.C
	}
	if stride == 0 {
		stride = 1
	}
	return blas32.General{Rows: m.R, Cols: m.C, Stride: stride, Data: m.Data}
}

// MatMul computes dst = a · b. dst must be a.R x b.C.
func MatMul(dst, a, b *Mat) {
	if a.C != b.R || dst.R != a.R || dst.C != b.C {
		panic("matmul shape mismatch")
	}
	if a.R == 0 || b.C == 0 {
		return
	}
	if a.C == 0 {
		clear(dst.Data[:dst.R*dst.Stride])
		return
	}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, general(a), general(b), 0, general(dst))
}

// MatMulTransB computes dst = a · bᵀ. dst must be a.R x b.R.
func MatMulTransB(dst, a, b *Mat) {
	if a.C != b.C || dst.R != a.R || dst.C != b.R {
		panic("matmul shape mismatch")
	}
	if a.R == 0 || b.R == 0 {
		return
	}
	if a.C == 0 {
		clear(dst.Data[:dst.R*dst.Stride])
		return
	}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, general(a), general(b), 0, general(dst))
}

// Linear computes dst = x · w + bias, with w laid out [in, out] and bias
// broadcast over rows. A nil bias is skipped.
func Linear(dst, x, w *Mat, bias []float32) {
	MatMul(dst, x, w)
	if len(bias) == 0 {
		return
	}
	if len(bias) != dst.C {
		panic("linear bias length mismatch")
	}
	for i := 0; i < dst.R; i++ {
		Add(dst.Row(i), bias)
	}
}
