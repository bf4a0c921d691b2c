package domain

// Importance is a 0-10 score influencing scheduling and eviction survival.
// Higher values are more important.
type Importance int

// Importance levels
const (
	ImportanceMin     Importance = 0
	DefaultImportance Importance = 5
	HighImportance    Importance = 8 // Preserved by EvictAll(preserveHighPriority)
	ImportanceMax     Importance = 10
)

// Clamp returns the importance limited to the valid 0-10 range
func (i Importance) Clamp() Importance {
	if i < ImportanceMin {
		return ImportanceMin
	}
	if i > ImportanceMax {
		return ImportanceMax
	}
	return i
}

// IsHigh returns true if the importance qualifies as high priority
func (i Importance) IsHigh() bool {
	return i >= HighImportance
}

// Fraction returns the importance scaled to 0..1
func (i Importance) Fraction() float64 {
	return float64(i.Clamp()) / float64(ImportanceMax)
}

// Name returns a human-readable band name for logs
func (i Importance) Name() string {
	switch c := i.Clamp(); {
	case c >= HighImportance:
		return "high"
	case c >= DefaultImportance:
		return "normal"
	case c > ImportanceMin:
		return "low"
	default:
		return "minimal"
	}
}
