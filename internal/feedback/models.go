package feedback

import (
	"math"
	"math/rand"
)

// OnlineModel is updated incrementally.
type OnlineModel interface {
	PartialFit(X [][]float64, y []float64)
	Predict(x []float64) float64
}

// BatchModel is refit from scratch on every call to Fit.
type BatchModel interface {
	Fit(X [][]float64, y []float64)
	Predict(x []float64) float64
}

// SGDRegressor is a linear least-squares model trained one sample at a time
// with an inverse-scaling learning rate and L2 shrinkage.
type SGDRegressor struct {
	Eta0   float64
	PowerT float64
	Alpha  float64

	w []float64
	b float64
	t float64
}

// NewSGDRegressor returns a regressor with eta0 0.01, power_t 0.25 and
// alpha 1e-4. Weights start at zero.
func NewSGDRegressor() *SGDRegressor {
	return &SGDRegressor{Eta0: 0.01, PowerT: 0.25, Alpha: 1e-4, t: 1}
}

// PartialFit makes one pass over X in order.
func (m *SGDRegressor) PartialFit(X [][]float64, y []float64) {
	for i, x := range X {
		if m.w == nil {
			m.w = make([]float64, len(x))
		}
		eta := m.Eta0 / math.Pow(m.t, m.PowerT)
		grad := m.Predict(x) - y[i]
		for j := range m.w {
			m.w[j] *= 1 - eta*m.Alpha
			m.w[j] -= eta * grad * x[j]
		}
		m.b -= eta * grad
		m.t++
	}
}

// Predict returns the linear prediction, or 0 before any training.
func (m *SGDRegressor) Predict(x []float64) float64 {
	sum := m.b
	for j, w := range m.w {
		if j < len(x) {
			sum += w * x[j]
		}
	}
	return sum
}

// MLPRegressor is a fully connected ReLU network with a linear output unit,
// trained by full-batch backpropagation with Adam.
type MLPRegressor struct {
	Hidden []int
	Epochs int
	Rate   float64
	Alpha  float64
	Seed   int64

	layers []layer
}

type layer struct {
	w [][]float64 // [out][in]
	b []float64
}

// NewMLPRegressor returns the (8, 4) network used by the learner.
func NewMLPRegressor() *MLPRegressor {
	return &MLPRegressor{Hidden: []int{8, 4}, Epochs: 500, Rate: 1e-3, Alpha: 1e-4, Seed: 42}
}

func (m *MLPRegressor) init(inputs int) {
	rng := rand.New(rand.NewSource(m.Seed))
	sizes := append([]int{inputs}, m.Hidden...)
	sizes = append(sizes, 1)
	m.layers = make([]layer, len(sizes)-1)
	for l := range m.layers {
		in, out := sizes[l], sizes[l+1]
		bound := math.Sqrt(6 / float64(in+out))
		ly := layer{w: make([][]float64, out), b: make([]float64, out)}
		for o := 0; o < out; o++ {
			ly.w[o] = make([]float64, in)
			for i := range ly.w[o] {
				ly.w[o][i] = (rng.Float64()*2 - 1) * bound
			}
			ly.b[o] = (rng.Float64()*2 - 1) * bound
		}
		m.layers[l] = ly
	}
}

// forward returns the activations of every layer, input included.
func (m *MLPRegressor) forward(x []float64) [][]float64 {
	acts := [][]float64{x}
	for l, ly := range m.layers {
		prev := acts[len(acts)-1]
		next := make([]float64, len(ly.b))
		for o := range ly.b {
			sum := ly.b[o]
			for i, v := range prev {
				sum += ly.w[o][i] * v
			}
			if l < len(m.layers)-1 && sum < 0 {
				sum = 0
			}
			next[o] = sum
		}
		acts = append(acts, next)
	}
	return acts
}

// Fit reinitializes the network from Seed and trains it on X.
func (m *MLPRegressor) Fit(X [][]float64, y []float64) {
	if len(X) == 0 {
		return
	}
	m.init(len(X[0]))
	n := float64(len(X))

	const beta1, beta2, eps = 0.9, 0.999, 1e-8
	mw, vw := m.zeros(), m.zeros()
	mb, vb := m.zerosBias(), m.zerosBias()

	for epoch := 1; epoch <= m.Epochs; epoch++ {
		gw, gb := m.zeros(), m.zerosBias()
		for s, x := range X {
			acts := m.forward(x)
			delta := []float64{acts[len(acts)-1][0] - y[s]}
			for l := len(m.layers) - 1; l >= 0; l-- {
				ly := m.layers[l]
				in := acts[l]
				for o := range ly.b {
					gb[l][o] += delta[o]
					for i := range in {
						gw[l][o][i] += delta[o] * in[i]
					}
				}
				if l == 0 {
					break
				}
				prev := make([]float64, len(in))
				for i := range in {
					if in[i] <= 0 {
						continue
					}
					for o := range ly.b {
						prev[i] += ly.w[o][i] * delta[o]
					}
				}
				delta = prev
			}
		}

		c1 := 1 - math.Pow(beta1, float64(epoch))
		c2 := 1 - math.Pow(beta2, float64(epoch))
		for l, ly := range m.layers {
			for o := range ly.b {
				for i := range ly.w[o] {
					g := gw[l][o][i]/n + m.Alpha*ly.w[o][i]/n
					mw[l][o][i] = beta1*mw[l][o][i] + (1-beta1)*g
					vw[l][o][i] = beta2*vw[l][o][i] + (1-beta2)*g*g
					ly.w[o][i] -= m.Rate * (mw[l][o][i] / c1) / (math.Sqrt(vw[l][o][i]/c2) + eps)
				}
				g := gb[l][o] / n
				mb[l][o] = beta1*mb[l][o] + (1-beta1)*g
				vb[l][o] = beta2*vb[l][o] + (1-beta2)*g*g
				ly.b[o] -= m.Rate * (mb[l][o] / c1) / (math.Sqrt(vb[l][o]/c2) + eps)
			}
		}
	}
}

// Predict returns the network output, or 0 before Fit.
func (m *MLPRegressor) Predict(x []float64) float64 {
	if len(m.layers) == 0 {
		return 0
	}
	acts := m.forward(x)
	return acts[len(acts)-1][0]
}

func (m *MLPRegressor) zeros() [][][]float64 {
	out := make([][][]float64, len(m.layers))
	for l, ly := range m.layers {
		out[l] = make([][]float64, len(ly.w))
		for o := range ly.w {
			out[l][o] = make([]float64, len(ly.w[o]))
		}
	}
	return out
}

func (m *MLPRegressor) zerosBias() [][]float64 {
	out := make([][]float64, len(m.layers))
	for l, ly := range m.layers {
		out[l] = make([]float64, len(ly.b))
	}
	return out
}
