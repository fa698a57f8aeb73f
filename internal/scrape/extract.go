package scrape

// Reading is the outcome for one field in one cycle.
type Reading struct {
	Key     string
	Raw     string // first capture group; empty when not matched
	Matched bool
	Value   Value
}

// Snapshot holds exactly one Reading per catalog field, in catalog
// order. It is built fresh by Extract and never updated afterwards.
type Snapshot struct {
	readings []Reading
}

// Readings returns a copy of the readings in catalog order.
func (s Snapshot) Readings() []Reading {
	return append([]Reading(nil), s.readings...)
}

// Len is the number of fields in the snapshot.
func (s Snapshot) Len() int { return len(s.readings) }

// Get returns the reading for key.
func (s Snapshot) Get(key string) (Reading, bool) {
	for _, r := range s.readings {
		if r.Key == key {
			return r, true
		}
	}
	return Reading{}, false
}

// Merge returns a snapshot holding the readings of s followed by those of other.
func (s Snapshot) Merge(other Snapshot) Snapshot {
	out := make([]Reading, 0, len(s.readings)+len(other.readings))
	out = append(out, s.readings...)
	out = append(out, other.readings...)
	return Snapshot{readings: out}
}

// Extract applies every field of catalog to page. Fields whose pattern
// does not match, or whose raw text does not decode, take their default.
func Extract(page string, catalog []Field) Snapshot {
	readings := make([]Reading, 0, len(catalog))
	for _, f := range catalog {
		readings = append(readings, extractField(page, f))
	}
	return Snapshot{readings: readings}
}

func extractField(page string, f Field) Reading {
	r := Reading{Key: f.Key, Value: f.Default}
	if f.Pattern == nil {
		return r
	}

	m := f.Pattern.FindStringSubmatch(page)
	if len(m) < 2 {
		return r
	}
	r.Raw, r.Matched = m[1], true

	if f.Transform == nil {
		r.Value = Text(r.Raw)
		return r
	}
	if v, ok := f.Transform(r.Raw); ok {
		r.Value = v
	}
	return r
}
