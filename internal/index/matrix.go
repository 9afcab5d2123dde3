// ABOUTME: Matrix backend storing all vectors in one contiguous row-major slice
// ABOUTME: Scores with a plain dot-product scan over unit rows
package index

type matrixRows struct {
	dim  int
	n    int
	data []float32
}

func newMatrixRows(dim, capacity int) rows {
	return &matrixRows{
		dim:  dim,
		data: make([]float32, 0, dim*capacity),
	}
}

func (m *matrixRows) append(v []float32) {
	if m.dim == 0 {
		m.dim = len(v)
	}
	m.data = append(m.data, v...)
	m.n++
}

func (m *matrixRows) len() int { return m.n }

func (m *matrixRows) row(i int) []float32 {
	return m.data[i*m.dim : (i+1)*m.dim : (i+1)*m.dim]
}

func (m *matrixRows) scores(query []float32) []float32 {
	out := make([]float32, m.n)
	for i := 0; i < m.n; i++ {
		row := m.data[i*m.dim : (i+1)*m.dim]
		var s float32
		for j, x := range row {
			s += x * query[j]
		}
		out[i] = s
	}
	return out
}
