package nn

// SGD implements stochastic gradient descent with momentum:
//
//	v = momentum*v + grad
//	param -= lr * v
//
// Parameters with RequiresGrad unset are skipped entirely; their velocity
// buffers are kept, so a parameter that is frozen and later re-enabled
// resumes with the momentum it had accumulated. One optimizer instance is
// meant to live across freeze/unfreeze phase transitions.
type SGD struct {
	params   []*Param
	lr       float64
	momentum float64
	velocity map[*Param][]float64
}

// NewSGD creates an optimizer over the given parameters.
func NewSGD(params []*Param, lr float64, momentum float64) *SGD {
	return &SGD{
		params:   params,
		lr:       lr,
		momentum: momentum,
		velocity: make(map[*Param][]float64),
	}
}

// Step applies one update to every trainable parameter.
func (opt *SGD) Step() {
	for _, p := range opt.params {
		if !p.RequiresGrad {
			continue
		}

		if opt.momentum == 0 {
			for i := range p.Value.Data {
				p.Value.Data[i] -= opt.lr * p.Grad[i]
			}
			continue
		}

		v, ok := opt.velocity[p]
		if !ok {
			v = make([]float64, len(p.Grad))
			opt.velocity[p] = v
		}
		for i := range p.Value.Data {
			v[i] = opt.momentum*v[i] + p.Grad[i]
			p.Value.Data[i] -= opt.lr * v[i]
		}
	}
}

// ZeroGrad clears the gradients of all parameters, trainable or not.
func (opt *SGD) ZeroGrad() {
	for _, p := range opt.params {
		p.ZeroGrad()
	}
}
