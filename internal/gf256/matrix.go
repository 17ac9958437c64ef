package gf256

import "github.com/chintran27/cdstore-go/internal/cdserrors"

// Matrix is a row-major k x k (or n x k) matrix over GF(2^8).
type Matrix [][]byte

// NewMatrix allocates a rows x cols zero matrix.
func NewMatrix(rows, cols int) Matrix {
	m := make(Matrix, rows)
	for i := range m {
		m[i] = make([]byte, cols)
	}
	return m
}

// Identity returns the n x n identity matrix.
func Identity(n int) Matrix {
	m := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		m[i][i] = 1
	}
	return m
}

// CauchyMatrix builds the n x k Cauchy matrix A[i][j] = 1/(i XOR (offset+j)),
// used directly for CRSSS (offset = n) and for the parity rows of AONT/CAONT
// (offset = m, appended below a k x k identity block) per spec.md §3.
func CauchyMatrix(n, k, offset int) (Matrix, error) {
	m := NewMatrix(n, k)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			denom := byte(i ^ (offset + j))
			if denom == 0 {
				return nil, cdserrors.New(cdserrors.KindInvalidArg, "gf256: Cauchy matrix denominator is zero, pick different n/m/k")
			}
			m[i][j] = Div(1, denom)
		}
	}
	return m, nil
}

// DistributionMatrix builds the n x k matrix described in spec.md §3:
// CRSSS uses a pure Cauchy matrix; AONT/CAONT use an identity block for the
// first k rows and a Cauchy block (offset=m) for the trailing m rows.
func DistributionMatrix(n, k, m int, systematic bool) (Matrix, error) {
	if !systematic {
		return CauchyMatrix(n, k, n)
	}
	mat := NewMatrix(n, k)
	id := Identity(k)
	for i := 0; i < k; i++ {
		copy(mat[i], id[i])
	}
	parity, err := CauchyMatrix(m, k, m)
	if err != nil {
		return nil, err
	}
	for i := 0; i < m; i++ {
		copy(mat[k+i], parity[i])
	}
	return mat, nil
}

// Rows returns the sub-matrix consisting of the given row indices, in order.
func (mat Matrix) Rows(indices []int) Matrix {
	out := make(Matrix, len(indices))
	for i, idx := range indices {
		out[i] = mat[idx]
	}
	return out
}

// Invert computes the inverse of a square matrix over GF(2^8) via
// Gauss-Jordan elimination with partial pivoting (spec.md §4.1): for column
// i, a zero pivot is swapped with the first row below it with a non-zero
// entry in that column; if none exists the matrix is singular and the
// caller must choose a different k-subset of rows.
func (mat Matrix) Invert() (Matrix, error) {
	n := len(mat)
	work := make(Matrix, n)
	inv := Identity(n)
	for i := range mat {
		row := make([]byte, n)
		copy(row, mat[i])
		work[i] = row
	}

	for i := 0; i < n; i++ {
		if work[i][i] == 0 {
			swapped := false
			for r := i + 1; r < n; r++ {
				if work[r][i] != 0 {
					work[i], work[r] = work[r], work[i]
					inv[i], inv[r] = inv[r], inv[i]
					swapped = true
					break
				}
			}
			if !swapped {
				return nil, cdserrors.New(cdserrors.KindSingularMatrix, "gf256: matrix is not invertible for the selected rows")
			}
		}

		if pivot := work[i][i]; pivot != 1 {
			inverse := Div(1, pivot)
			RegionXORMul(work[i], work[i], inverse, false)
			RegionXORMul(inv[i], inv[i], inverse, false)
		}

		for r := 0; r < n; r++ {
			if r == i {
				continue
			}
			coef := work[r][i]
			if coef == 0 {
				continue
			}
			RegionXORMul(work[i], work[r], coef, true)
			RegionXORMul(inv[i], inv[r], coef, true)
		}
	}

	return inv, nil
}

// MulVector multiplies this matrix by a column vector of words (each `wordSize`
// bytes), returning one output word per row: out[row] = XOR_j coef[row][j]*in[j].
func (mat Matrix) MulVector(in [][]byte, wordSize int) [][]byte {
	out := make([][]byte, len(mat))
	for r, row := range mat {
		acc := make([]byte, wordSize)
		for j, coef := range row {
			RegionXORMul(in[j], acc, coef, true)
		}
		out[r] = acc
	}
	return out
}
