package model

import G "gorgonia.org/gorgonia"

// Huber adds the elementwise Huber loss of diff with threshold delta
// to diff's graph. The loss is quadratic for |diff| < delta and linear
// beyond it.
func Huber(diff *G.Node, delta float64) *G.Node {
	deltaConst := G.NewConstant(delta)
	half := G.NewConstant(0.5)
	one := G.NewConstant(1.0)
	halfDeltaSq := G.NewConstant(0.5 * delta * delta)

	absDiff := G.Must(G.Abs(diff))
	quadMask := G.Must(G.Lt(absDiff, deltaConst, true))
	linMask := G.Must(G.Sub(one, quadMask))

	quad := G.Must(G.Mul(half, G.Must(G.Square(diff))))
	lin := G.Must(G.Sub(G.Must(G.Mul(deltaConst, absDiff)), halfDeltaSq))

	return G.Must(G.Add(
		G.Must(G.HadamardProd(quadMask, quad)),
		G.Must(G.HadamardProd(linMask, lin)),
	))
}
