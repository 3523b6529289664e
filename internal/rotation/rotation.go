// Package rotation converts alignment Euler angles into rotation matrices.
package rotation

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ValidationTolerance is the default tolerance used by IsRotation.
const ValidationTolerance = 1e-9

// Matrix is a 3x3 rotation matrix in row-major order.
type Matrix [9]float64

// Identity is the 3x3 identity matrix.
var Identity = Matrix{1, 0, 0, 0, 1, 0, 0, 0, 1}

// AnglesToMatrix builds the rotation matrix for yaw (phi), pitch (theta) and
// roll (psi). Angles are in degrees when degrees is true, radians otherwise.
//
// The term layout is the Tait-Bryan convention used by the muon chamber
// alignment files and must not be rearranged:
//
//	| cθcφ              -cθsφ              sθ    |
//	| sψsθcφ + cψsφ     -sψsθsφ + cψcφ     -cθsψ |
//	| -cψsθcφ + sψsφ    cψsθsφ + sψcφ      cθcψ  |
func AnglesToMatrix(yaw, pitch, roll float64, degrees bool) Matrix {
	if degrees {
		yaw = radians(yaw)
		pitch = radians(pitch)
		roll = radians(roll)
	}

	sinpsi, cospsi := math.Sincos(roll)
	sinthe, costhe := math.Sincos(pitch)
	sinphi, cosphi := math.Sincos(yaw)

	return Matrix{
		costhe * cosphi,
		-costhe * sinphi,
		sinthe,
		sinpsi*sinthe*cosphi + cospsi*sinphi,
		-sinpsi*sinthe*sinphi + cospsi*cosphi,
		-costhe * sinpsi,
		-cospsi*sinthe*cosphi + sinpsi*sinphi,
		cospsi*sinthe*sinphi + sinpsi*cosphi,
		costhe * cospsi,
	}
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// At returns the element at row i, column j.
func (m Matrix) At(i, j int) float64 {
	return m[i*3+j]
}

// Apply rotates the point (x, y, z).
func (m Matrix) Apply(x, y, z float64) (rx, ry, rz float64) {
	rx = m[0]*x + m[1]*y + m[2]*z
	ry = m[3]*x + m[4]*y + m[5]*z
	rz = m[6]*x + m[7]*y + m[8]*z
	return
}

// Dense returns m as a gonum dense matrix.
func (m Matrix) Dense() *mat.Dense {
	data := make([]float64, 9)
	copy(data, m[:])
	return mat.NewDense(3, 3, data)
}

// Rows returns m as three rows, the shape used in JSON responses.
func (m Matrix) Rows() [3][3]float64 {
	return [3][3]float64{
		{m[0], m[1], m[2]},
		{m[3], m[4], m[5]},
		{m[6], m[7], m[8]},
	}
}

// IsRotation reports whether m is a proper rotation: orthonormal (M·Mᵀ = I)
// with determinant +1, both within tol.
func IsRotation(m Matrix, tol float64) bool {
	d := m.Dense()
	if math.Abs(mat.Det(d)-1.0) > tol {
		return false
	}
	var product mat.Dense
	product.Mul(d, d.T())
	return mat.EqualApprox(&product, Identity.Dense(), tol)
}
