// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gnssfix

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Smallest accepted ratio of the smallest to the largest singular value of G
const rankTol = 1e-10

// Solve the observation equation using weighted least squares
// - dx = (G^t W G)^-1 G^t W dr
// - Return the error covariance matrix (G^t W G)^-1 as cov
// - Rank deficient G gives ErrSingularGeometry
func SolveLS(G mat.Matrix, dr mat.Vector, W mat.Matrix) (dx *mat.VecDense, cov *mat.Dense, err error) {

	n1, m1 := G.Dims()
	n2, m2 := W.Dims()
	if n1 != n2 {
		return nil, nil, fmt.Errorf("invalid matrix size. G^T(%d x %d), W(%d x %d)", m1, n1, n2, m2)
	}
	l1 := dr.Len()
	if l1 != m2 {
		return nil, nil, fmt.Errorf("invalid matrix size. W(%d x %d), dr(%d x 1)", n2, m2, l1)
	}

	if !fullColumnRank(G) {
		return nil, nil, ErrSingularGeometry
	}

	// A (G^t W G)
	var WG mat.Dense
	WG.Mul(W, G)
	var A mat.Dense
	A.Mul(G.T(), &WG)

	// b (G^t W dr)
	var GtW mat.Dense
	GtW.Mul(G.T(), W)
	var b mat.VecDense
	b.MulVec(&GtW, dr)

	// Solve for x (x = A^-1 b)
	var x mat.VecDense
	if err = x.SolveVec(&A, &b); err != nil {
		return nil, nil, fmt.Errorf("%v: %w", err, ErrSingularGeometry)
	}

	// Set (G^T W G)^-1 as the covariance matrix
	var c mat.Dense
	if err = c.Inverse(&A); err != nil {
		return nil, nil, fmt.Errorf("%v: %w", err, ErrSingularGeometry)
	}

	return &x, &c, nil
}

// Check that G has full column rank
func fullColumnRank(G mat.Matrix) bool {
	r, c := G.Dims()
	if r < c {
		return false
	}
	var svd mat.SVD
	if ok := svd.Factorize(G, mat.SVDNone); !ok {
		return false
	}
	s := svd.Values(nil)
	if len(s) < c || s[0] == 0 {
		return false
	}
	return s[len(s)-1]/s[0] >= rankTol
}
