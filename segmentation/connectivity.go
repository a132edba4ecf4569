package segmentation

// 4-neighbourhood offsets.
var (
	neighbourX = [4]int{1, -1, 0, 0}
	neighbourY = [4]int{0, 0, 1, -1}
)

// enforceConnectivity relabels every 4-connected component of labels.
//
// Components are visited in raster order. A component smaller than minSize
// takes the label of the last adjacent, already relabelled component, and a
// component is cut once it reaches maxSize. The result is contiguous.
func enforceConnectivity(labels []int, h, w, minSize, maxSize int) ([]int, int) {
	out := make([]int, len(labels))
	for i := range out {
		out[i] = -1
	}
	if maxSize < 1 {
		maxSize = 1
	}

	queue := make([]int, 0, maxSize)
	next := 0
	for start := range labels {
		if out[start] >= 0 {
			continue
		}

		label := labels[start]
		adjacent := 0
		out[start] = next
		queue = append(queue[:0], start)

		for visited := 0; visited < len(queue) && len(queue) < maxSize; visited++ {
			p := queue[visited]
			py, px := p/w, p%w
			for d := 0; d < 4; d++ {
				y, x := py+neighbourY[d], px+neighbourX[d]
				if y < 0 || y >= h || x < 0 || x >= w {
					continue
				}
				n := y*w + x
				switch {
				case labels[n] == label && out[n] == -1:
					out[n] = next
					queue = append(queue, n)
				case out[n] >= 0 && out[n] != next:
					adjacent = out[n]
				}
				if len(queue) >= maxSize {
					break
				}
			}
		}

		if len(queue) < minSize {
			for _, p := range queue {
				out[p] = adjacent
			}
			continue
		}
		next++
	}
	if next == 0 && len(labels) > 0 {
		// Everything was merged into the first component.
		next = 1
	}
	return out, next
}
