package tensor

import (
	"math"
	"math/rand"
	"testing"
)

func gemmNaive(C, A, B *Mat) {
	for i := 0; i < A.R; i++ {
		for j := 0; j < B.C; j++ {
			var sum float32
			for kk := 0; kk < A.C; kk++ {
				sum += A.Row(i)[kk] * B.Row(kk)[j]
			}
			C.Row(i)[j] = sum
		}
	}
}

func maxAbsDiff(a, b []float32) float64 {
	var maxAbs float64
	for i := range a {
		d := math.Abs(float64(a[i] - b[i]))
		if d > maxAbs {
			maxAbs = d
		}
	}
	return maxAbs
}

func TestMatMulMatchesNaive(t *testing.T) {
	A := NewMat(50, 70)
	B := NewMat(70, 45)
	C0 := NewMat(50, 45)
	C1 := NewMat(50, 45)

	fillRand(&A, 1)
	fillRand(&B, 2)

	gemmNaive(&C0, &A, &B)
	MatMul(&C1, &A, &B)

	if maxAbs := maxAbsDiff(C0.Data, C1.Data); maxAbs > 1e-5 {
		t.Fatalf("max abs diff %g", maxAbs)
	}
}

func TestMatMulTransBMatchesNaive(t *testing.T) {
	A := NewMat(7, 12)
	B := NewMat(9, 12)
	fillRand(&A, 3)
	fillRand(&B, 4)

	Bt := NewMat(12, 9)
	for i := 0; i < B.R; i++ {
		for j := 0; j < B.C; j++ {
			Bt.Row(j)[i] = B.Row(i)[j]
		}
	}

	want := NewMat(7, 9)
	got := NewMat(7, 9)
	gemmNaive(&want, &A, &Bt)
	MatMulTransB(&got, &A, &B)

	if maxAbs := maxAbsDiff(want.Data, got.Data); maxAbs > 1e-6 {
		t.Fatalf("max abs diff %g", maxAbs)
	}
}

func TestLinearAddsBiasPerRow(t *testing.T) {
	x := NewMatFromData(2, 2, []float32{1, 2, 3, 4})
	w := NewMatFromData(2, 3, []float32{1, 0, 1, 0, 1, 1})
	dst := NewMat(2, 3)

	Linear(&dst, &x, &w, []float32{10, 20, 30})

	want := []float32{11, 22, 33, 13, 24, 37}
	for i := range want {
		if dst.Data[i] != want[i] {
			t.Fatalf("linear[%d]: got %v want %v", i, dst.Data[i], want[i])
		}
	}
}

func TestMatMulShapeMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on shape mismatch")
		}
	}()
	a := NewMat(2, 3)
	b := NewMat(2, 3)
	c := NewMat(2, 3)
	MatMul(&c, &a, &b)
}

// fillRand fills m with reproducible values in roughly (-0.01, 0.01).
func fillRand(m *Mat, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = (rng.Float32() - 0.5) * 0.02
	}
}
