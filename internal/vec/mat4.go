package vec

// Mat4 is a 4x4 matrix stored as four column vectors. The quantized matmul
// fills column r with the reconstructed weights of output row r.
type Mat4 [4]Vec4

// MulTransposed returns transpose(m) * x, i.e. component r is dot(m[r], x).
func (m *Mat4) MulTransposed(x Vec4) Vec4 {
	return Vec4{m[0].Dot(x), m[1].Dot(x), m[2].Dot(x), m[3].Dot(x)}
}

// Transpose returns the transposed matrix.
func (m *Mat4) Transpose() Mat4 {
	var t Mat4
	for i := range 4 {
		for j := range 4 {
			t[j][i] = m[i][j]
		}
	}
	return t
}
