package exploration_test

import (
	"testing"

	"github.com/Baichenjia/rltf/exploration"
	"github.com/Baichenjia/rltf/schedule"
)

func TestOrnsteinUhlenbeckReset(t *testing.T) {
	noise := exploration.NewOrnsteinUhlenbeck(2, 0.0, 0.2, 0.15, 1.0, 42)

	for i := 0; i < 10; i++ {
		noise.Sample(i)
	}
	noise.Reset()

	// After a reset the process restarts from the zero state, so two
	// identically seeded processes diverge only through their random
	// draws
	sample := noise.Sample(0)
	if sample.Len() != 2 {
		t.Fatalf("wrong noise dimension\n\twant(%v)\n\thave(%v)", 2,
			sample.Len())
	}
}

func TestOrnsteinUhlenbeckIsCorrelated(t *testing.T) {
	noise := exploration.NewOrnsteinUhlenbeck(1, 0.0, 0.01, 0.15, 1.0, 42)

	// With a tiny sigma the state moves in small increments, so
	// successive samples stay close together
	prev := noise.Sample(0).AtVec(0)
	for i := 1; i < 100; i++ {
		cur := noise.Sample(i).AtVec(0)
		if diff := cur - prev; diff > 0.1 || diff < -0.1 {
			t.Fatalf("successive samples not temporally correlated: "+
				"%v -> %v", prev, cur)
		}
		prev = cur
	}
}

func TestGaussianDims(t *testing.T) {
	noise := exploration.NewGaussian(3, 0.0, 1.0, 42)
	if sample := noise.Sample(0); sample.Len() != 3 {
		t.Errorf("wrong noise dimension\n\twant(%v)\n\thave(%v)", 3,
			sample.Len())
	}
	noise.Reset() // no-op, must not panic
}

func TestDecayedScalesNoise(t *testing.T) {
	decay, err := schedule.NewLinear(1.0, 0.0, 100)
	if err != nil {
		t.Fatalf("newlinear: %v", err)
	}
	noise := exploration.NewDecayed(exploration.NewGaussian(1, 0.0, 1.0, 42),
		decay)

	// Past the end of the schedule the noise is fully annealed
	if sample := noise.Sample(1000); sample.AtVec(0) != 0.0 {
		t.Errorf("fully decayed noise should be 0, got %v",
			sample.AtVec(0))
	}
}

func TestDecayedResetPropagates(t *testing.T) {
	ou := exploration.NewOrnsteinUhlenbeck(1, 5.0, 0.0, 1.0, 1.0, 42)
	noise := exploration.NewDecayed(ou, schedule.NewConst(1.0))

	// With sigma 0 and theta 1 the process moves deterministically
	// towards mu; after a reset it restarts from 0
	first := noise.Sample(0).AtVec(0)
	noise.Sample(1)
	noise.Reset()
	restarted := noise.Sample(2).AtVec(0)

	if first != restarted {
		t.Errorf("reset did not restart the wrapped process\n\twant(%v)"+
			"\n\thave(%v)", first, restarted)
	}
}
