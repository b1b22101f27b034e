package split

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/nn"
)

func newTestSplit(t *testing.T, seed int64) *ModelSplit {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	model, err := nn.NewModel(common.MODEL_MLP_TWO_LAYER, nn.ModelDims{InputDim: 4, HiddenDim: 3, NumClasses: 2}, rng)
	require.NoError(t, err)
	m, err := New(model, FinalLinearSplitter{})
	require.NoError(t, err)
	return m
}

func TestSplitPartitionsAllParameters(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	model, err := nn.NewModel(common.MODEL_MLP_THREE_LAYER, nn.ModelDims{InputDim: 4, HiddenDim: 3, NumClasses: 2}, rng)
	require.NoError(t, err)

	m, err := New(model, FinalLinearSplitter{})
	require.NoError(t, err)

	bodyNames := map[string]bool{}
	for _, p := range m.Body().Params() {
		bodyNames[p.Name] = true
	}
	headNames := map[string]bool{}
	for _, p := range m.Head().Params() {
		headNames[p.Name] = true
	}

	for name := range bodyNames {
		assert.False(t, headNames[name], "parameter %s in both body and head", name)
	}
	for _, p := range model.Params() {
		assert.True(t, bodyNames[p.Name] || headNames[p.Name], "parameter %s unassigned", p.Name)
	}
	assert.Equal(t, len(model.Params()), len(bodyNames)+len(headNames))

	// Final-layer rule: head is exactly the last linear layer.
	assert.True(t, headNames["fc3.weight"])
	assert.True(t, headNames["fc3.bias"])
	assert.Len(t, headNames, 2)
}

func TestGetSetParametersRoundTrip(t *testing.T) {
	m := newTestSplit(t, 2)

	names := m.ParameterNames()
	tensors := m.GetParameters()
	require.Equal(t, len(names), len(tensors))
	require.Equal(t, len(m.Body().Params())+len(m.Head().Params()), len(tensors))

	state := map[string]*nn.Tensor{}
	for i, name := range names {
		state[name] = tensors[i]
	}

	other := newTestSplit(t, 99)
	require.NoError(t, other.SetParameters(state))

	after := other.GetParameters()
	for i := range tensors {
		assert.True(t, tensors[i].Equal(after[i]), "parameter %s not bit-identical after round trip", names[i])
	}
}

func TestGetParametersReturnsCopies(t *testing.T) {
	m := newTestSplit(t, 2)

	tensors := m.GetParameters()
	tensors[0].Data[0] += 100

	assert.NotEqual(t, tensors[0].Data[0], m.Params()[0].Value.Data[0])
}

func TestSetParametersIgnoresUnknownKeys(t *testing.T) {
	m := newTestSplit(t, 2)
	before := m.GetParameters()

	err := m.SetParameters(map[string]*nn.Tensor{
		"unknown.weight": nn.NewTensor(2, 2),
	})
	require.NoError(t, err)

	after := m.GetParameters()
	for i := range before {
		assert.True(t, before[i].Equal(after[i]))
	}
}

func TestSetParametersRejectsShapeMismatch(t *testing.T) {
	m := newTestSplit(t, 2)

	err := m.SetParameters(map[string]*nn.Tensor{
		"fc1.weight": nn.NewTensor(1, 1),
	})
	require.Error(t, err)

	var shapeErr *ShapeMismatchError
	assert.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "fc1.weight", shapeErr.Name)
}

func TestLoadHeadStateStrict(t *testing.T) {
	m := newTestSplit(t, 2)

	valid := m.Head().StateDict()
	require.NoError(t, m.LoadHeadState(valid))

	missing := m.Head().StateDict()
	delete(missing, "fc2.bias")
	assert.Error(t, m.LoadHeadState(missing))

	extra := m.Head().StateDict()
	extra["bogus"] = nn.NewTensor(1)
	assert.Error(t, m.LoadHeadState(extra))

	badShape := m.Head().StateDict()
	badShape["fc2.weight"] = nn.NewTensor(1, 1)
	err := m.LoadHeadState(badShape)
	var shapeErr *ShapeMismatchError
	assert.True(t, errors.As(err, &shapeErr))
}

func TestLoadBodyStateStrict(t *testing.T) {
	m := newTestSplit(t, 2)

	state := m.Body().StateDict()
	for _, tensor := range state {
		for i := range tensor.Data {
			tensor.Data[i] = 1.5
		}
	}
	require.NoError(t, m.LoadBodyState(state))
	for _, p := range m.Body().Params() {
		for _, v := range p.Value.Data {
			assert.Equal(t, 1.5, v)
		}
	}

	assert.Error(t, m.LoadBodyState(map[string]*nn.Tensor{}))
}

func TestGradientToggles(t *testing.T) {
	m := newTestSplit(t, 3)

	m.DisableBody()
	m.EnableHead()

	x := nn.NewTensor(2, 4)
	rng := rand.New(rand.NewSource(7))
	for i := range x.Data {
		x.Data[i] = rng.NormFloat64()
	}

	logits := m.Forward(x)
	_, grad := nn.CrossEntropy(logits, []int{0, 1})
	m.Backward(grad)

	for _, p := range m.Body().Params() {
		for _, g := range p.Grad {
			assert.Zero(t, g, "body parameter %s accumulated gradient while disabled", p.Name)
		}
	}
	nonzero := false
	for _, p := range m.Head().Params() {
		for _, g := range p.Grad {
			if g != 0 {
				nonzero = true
			}
		}
	}
	assert.True(t, nonzero, "head parameters accumulated no gradient")
}

func TestForwardMatchesUnsplitModel(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	model, err := nn.NewModel(common.MODEL_MLP_TWO_LAYER, nn.ModelDims{InputDim: 4, HiddenDim: 3, NumClasses: 2}, rng)
	require.NoError(t, err)

	m, err := New(model, FinalLinearSplitter{})
	require.NoError(t, err)

	x := nn.NewTensor(1, 4)
	for i := range x.Data {
		x.Data[i] = float64(i)
	}

	want := model.Forward(x)
	got := m.Forward(x)
	assert.True(t, want.Equal(got))
}
