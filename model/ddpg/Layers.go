package ddpg

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/Baichenjia/rltf/network"
)

// layer is a single fully connected layer of the actor or critic.
// The actor and critic graphs are built from these directly, since
// the actor's training graph must chain the actor's output into a
// copy of the critic.
type layer struct {
	weights *G.Node
	bias    *G.Node
	act     *network.Activation
}

// fwd adds the layer's forward pass to the graph
func (l layer) fwd(x *G.Node) (*G.Node, error) {
	x = G.Must(G.Mul(x, l.weights))
	if l.bias != nil {
		x = G.Must(G.BroadcastAdd(x, l.bias, nil, []byte{0}))
	}
	if l.act == nil || l.act.IsIdentity() {
		return x, nil
	}
	return l.act.Apply(x)
}

// fwdAll chains the forward pass of layers starting from x
func fwdAll(layers []layer, x *G.Node) (*G.Node, error) {
	var err error
	for i, l := range layers {
		if x, err = l.fwd(x); err != nil {
			return nil, fmt.Errorf("fwdall: could not compute forward "+
				"pass of layer %v: %v", i, err)
		}
	}
	return x, nil
}

// addLayers populates g with fully connected layers. Weight nodes are
// named with the prefix so that the same layer in two networks can be
// distinguished.
func addLayers(g *G.ExprGraph, prefix string, features int, sizes []int,
	biases []bool, acts []*network.Activation, init G.InitWFn) []layer {
	layers := make([]layer, len(sizes))

	in := features
	for i, out := range sizes {
		weights := G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(in, out),
			G.WithName(fmt.Sprintf("%vL%dW", prefix, i)),
			G.WithInit(init),
		)

		var bias *G.Node
		if biases[i] {
			bias = G.NewVector(
				g,
				tensor.Float64,
				G.WithShape(out),
				G.WithName(fmt.Sprintf("%vL%dB", prefix, i)),
				G.WithInit(G.Zeroes()),
			)
		}

		layers[i] = layer{weights: weights, bias: bias, act: acts[i]}
		in = out
	}

	return layers
}

// cloneLayers clones layers, with their current weight values, onto a
// new graph
func cloneLayers(g *G.ExprGraph, src []layer) []layer {
	cloned := make([]layer, len(src))
	for i, l := range src {
		var bias *G.Node
		if l.bias != nil {
			bias = l.bias.CloneTo(g)
		}
		cloned[i] = layer{
			weights: l.weights.CloneTo(g),
			bias:    bias,
			act:     l.act,
		}
	}
	return cloned
}

// learnables returns the learnable nodes of layers
func learnables(layers []layer) G.Nodes {
	nodes := make([]*G.Node, 0, 2*len(layers))
	for _, l := range layers {
		nodes = append(nodes, l.weights)
		if l.bias != nil {
			nodes = append(nodes, l.bias)
		}
	}
	return G.Nodes(nodes)
}

// valueGrads returns the learnable nodes of layers with their
// gradients, for a solver step
func valueGrads(layers []layer) []G.ValueGrad {
	nodes := learnables(layers)
	grads := make([]G.ValueGrad, len(nodes))
	for i, node := range nodes {
		grads[i] = node
	}
	return grads
}

// setLayers copies the weight values of src into dst
func setLayers(dst, src []layer) error {
	dstNodes := learnables(dst)
	srcNodes := learnables(src)
	for i, dstNode := range dstNodes {
		srcNode := srcNodes[i].Clone()
		if err := G.Let(dstNode, srcNode.(*G.Node).Value()); err != nil {
			return err
		}
	}
	return nil
}

// polyakLayers sets the weights of dst to a Polyak average between
// its existing weights and the weights of src
func polyakLayers(dst, src []layer, tau float64) error {
	dstNodes := learnables(dst)
	srcNodes := learnables(src)
	for i := range dstNodes {
		weights := dstNodes[i].Value().(*tensor.Dense)
		srcWeights := srcNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return err
		}
		srcWeights, err = srcWeights.MulScalar(tau, true)
		if err != nil {
			return err
		}
		newWeights, err := weights.Add(srcWeights)
		if err != nil {
			return err
		}
		if err := G.Let(dstNodes[i], newWeights); err != nil {
			return err
		}
	}
	return nil
}

// snapshotLayers returns the current weight values keyed by node name
func snapshotLayers(layers []layer) map[string]network.Weights {
	nodes := learnables(layers)
	snapshot := make(map[string]network.Weights, len(nodes))
	for _, node := range nodes {
		value := node.Value().(*tensor.Dense)

		data := make([]float64, len(value.Data().([]float64)))
		copy(data, value.Data().([]float64))
		shape := make([]int, len(value.Shape()))
		copy(shape, value.Shape())

		snapshot[node.Name()] = network.Weights{Shape: shape, Data: data}
	}
	return snapshot
}

// restoreLayers sets each learnable node's value from the entry under
// its name
func restoreLayers(layers []layer, snap map[string]network.Weights) error {
	for _, node := range learnables(layers) {
		weights, ok := snap[node.Name()]
		if !ok {
			return fmt.Errorf("restorelayers: no persisted weights for "+
				"node %q", node.Name())
		}
		if !node.Shape().Eq(tensor.Shape(weights.Shape)) {
			return fmt.Errorf("restorelayers: shape mismatch for node %q"+
				"\n\twant(%v)\n\thave(%v)", node.Name(), node.Shape(),
				weights.Shape)
		}

		data := make([]float64, len(weights.Data))
		copy(data, weights.Data)
		value := tensor.New(
			tensor.WithShape(weights.Shape...),
			tensor.WithBacking(data),
		)
		if err := G.Let(node, value); err != nil {
			return fmt.Errorf("restorelayers: could not set node %q: %v",
				node.Name(), err)
		}
	}
	return nil
}
