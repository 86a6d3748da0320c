package focus

import "github.com/your-org/mindfocus/internal/models"

// DefaultMaxPoints is the graph resolution used when the caller gives none.
const DefaultMaxPoints = 150

// Downsample thins a bucket series to at most maxPoints rows by taking
// evenly spaced samples. The first and last rows are always kept.
func Downsample(metrics []models.Metric, maxPoints int) []models.Metric {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	n := len(metrics)
	if n <= maxPoints {
		return metrics
	}
	if maxPoints == 1 {
		return []models.Metric{metrics[n-1]}
	}

	out := make([]models.Metric, 0, maxPoints)
	step := float64(n-1) / float64(maxPoints-1)
	for i := 0; i < maxPoints; i++ {
		idx := int(float64(i)*step + 0.5)
		if idx >= n {
			idx = n - 1
		}
		out = append(out, metrics[idx])
	}
	out[len(out)-1] = metrics[n-1]
	return out
}
