package transform

// Matrix is a 2D affine transform in homogeneous form. The last row is
// implicitly (0, 0, 1).
type Matrix [2][3]float64

// Identity is the identity transform.
var Identity = Matrix{{1, 0, 0}, {0, 1, 0}}

// Translation moves points by (dx, dy).
func Translation(dx, dy float64) Matrix {
	return Matrix{{1, 0, dx}, {0, 1, dy}}
}

// Scale scales points about the origin.
func Scale(sx, sy float64) Matrix {
	return Matrix{{sx, 0, 0}, {0, sy, 0}}
}

// QuarterTurn rotates counter-clockwise (y up) by n quarter turns. The
// entries are exact, unlike a rotation built from math.Sin and math.Cos.
func QuarterTurn(n int) Matrix {
	cs := [4][2]float64{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}[((n%4)+4)%4]
	c, s := cs[0], cs[1]
	return Matrix{{c, -s, 0}, {s, c, 0}}
}

// Mul returns m*n, the transform that applies n first and then m.
func (m Matrix) Mul(n Matrix) Matrix {
	var r Matrix
	for i := 0; i < 2; i++ {
		r[i][0] = m[i][0]*n[0][0] + m[i][1]*n[1][0]
		r[i][1] = m[i][0]*n[0][1] + m[i][1]*n[1][1]
		r[i][2] = m[i][0]*n[0][2] + m[i][1]*n[1][2] + m[i][2]
	}
	return r
}

// Apply transforms the point (x, y).
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m[0][0]*x + m[0][1]*y + m[0][2], m[1][0]*x + m[1][1]*y + m[1][2]
}
