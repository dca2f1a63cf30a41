package model

import "sort"

// ConfidenceMap maps exercise class names to raw classifier confidence. The
// scale is defined by the classifier and is not normalized.
type ConfidenceMap map[string]float64

// Get returns the confidence for class, or 0 when absent.
func (m ConfidenceMap) Get(class string) float64 {
	return m[class]
}

// Max returns the highest confidence among classes.
func (m ConfidenceMap) Max(classes ...string) float64 {
	var best float64
	for i, c := range classes {
		v := m[c]
		if i == 0 || v > best {
			best = v
		}
	}
	return best
}

// Classes returns the class names in ascending order.
func (m ConfidenceMap) Classes() []string {
	out := make([]string, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Top returns the class with the highest confidence. Ties go to the class
// name that sorts first. ok is false for an empty map.
func (m ConfidenceMap) Top() (class string, confidence float64, ok bool) {
	for _, c := range m.Classes() {
		v := m[c]
		if !ok || v > confidence {
			class, confidence, ok = c, v, true
		}
	}
	return class, confidence, ok
}

// Clone returns a copy that does not share storage with m.
func (m ConfidenceMap) Clone() ConfidenceMap {
	out := make(ConfidenceMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
