package opt

import "math"

// ReduceLROnPlateau reduces the learning rate when the loss has stopped improving.
type ReduceLROnPlateau struct {
	optimizer Optimizer
	factor    float64
	patience  int
	threshold float64
	cooldown  int
	minLR     float64

	bestLoss        float64
	numBadEpochs    int
	cooldownCounter int
}

// NewReduceLROnPlateau multiplies the learning rate of optimizer by factor
// after patience non-improving steps, never going below minLR.
func NewReduceLROnPlateau(optimizer Optimizer, factor float64, patience int, threshold, minLR float64) *ReduceLROnPlateau {
	return &ReduceLROnPlateau{
		optimizer: optimizer,
		factor:    factor,
		patience:  patience,
		threshold: threshold,
		minLR:     minLR,
		bestLoss:  math.Inf(1),
	}
}

// StepWithLoss records the loss of the latest iteration.
func (s *ReduceLROnPlateau) StepWithLoss(currentLoss float64) {
	if s.cooldownCounter > 0 {
		s.cooldownCounter--
		return
	}

	if currentLoss < s.bestLoss-s.threshold {
		s.bestLoss = currentLoss
		s.numBadEpochs = 0
	} else {
		s.numBadEpochs++
	}

	if s.numBadEpochs >= s.patience {
		lr := math.Max(s.optimizer.LearningRate()*s.factor, s.minLR)
		s.optimizer.SetLearningRate(lr)
		s.numBadEpochs = 0
		s.cooldownCounter = s.cooldown
	}
}

// LearningRate returns the optimizer's current learning rate.
func (s *ReduceLROnPlateau) LearningRate() float64 {
	return s.optimizer.LearningRate()
}
