package nn

import (
	"math"
)

// CrossEntropy computes the mean softmax cross-entropy loss of a batch of
// logits against integer class labels, together with the gradient of the
// loss with respect to the logits. The max logit is subtracted before
// exponentiation for numerical stability.
func CrossEntropy(logits *Tensor, labels []int) (float64, *Tensor) {
	batch := logits.Shape[0]
	classes := logits.Shape[1]

	grad := NewTensor(batch, classes)
	totalLoss := 0.0

	for b := 0; b < batch; b++ {
		row := logits.Data[b*classes : (b+1)*classes]

		maxLogit := row[0]
		for _, v := range row[1:] {
			if v > maxLogit {
				maxLogit = v
			}
		}

		sumExp := 0.0
		for _, v := range row {
			sumExp += math.Exp(v - maxLogit)
		}
		logSumExp := maxLogit + math.Log(sumExp)

		totalLoss += logSumExp - row[labels[b]]

		gradRow := grad.Data[b*classes : (b+1)*classes]
		for c := 0; c < classes; c++ {
			softmax := math.Exp(row[c]-maxLogit) / sumExp
			gradRow[c] = softmax / float64(batch)
		}
		gradRow[labels[b]] -= 1.0 / float64(batch)
	}

	return totalLoss / float64(batch), grad
}

// CrossEntropyLoss computes only the mean loss, for evaluation.
func CrossEntropyLoss(logits *Tensor, labels []int) float64 {
	loss, _ := CrossEntropy(logits, labels)
	return loss
}

// CountCorrect returns how many rows have their argmax at the labelled class.
func CountCorrect(logits *Tensor, labels []int) int {
	batch := logits.Shape[0]
	classes := logits.Shape[1]

	correct := 0
	for b := 0; b < batch; b++ {
		row := logits.Data[b*classes : (b+1)*classes]
		best := 0
		for c := 1; c < classes; c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		if best == labels[b] {
			correct++
		}
	}
	return correct
}
