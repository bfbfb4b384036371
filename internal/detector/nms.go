package detector

import "slices"

// nms keeps the best-scoring face of every overlapping group
func nms(faces []Face, iouThreshold float32) []Face {
	if len(faces) == 0 {
		return faces
	}

	slices.SortFunc(faces, func(a, b Face) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	kept := faces[:0:0]
	for _, f := range faces {
		suppressed := false
		for _, k := range kept {
			if k.Box.IoU(f.Box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, f)
		}
	}
	return kept
}

// primary returns the largest face
func primary(faces []Face) (Face, bool) {
	if len(faces) == 0 {
		return Face{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Box.Area() > best.Box.Area() {
			best = f
		}
	}
	return best, true
}
