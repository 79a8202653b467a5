package naming

// Resolver maps device names between their raw form (as reported by the
// adapter) and their spoken form (as configured synonyms).
//
// A Resolver is immutable once built and safe for concurrent use. A nil
// *Resolver resolves every name to itself.
type Resolver struct {
	table    Table
	toRaw    map[string]string // spoken form -> raw name, first claim wins
	toSpoken map[string]string // raw name -> preferred spoken form
}

// NewResolver builds a resolver from an ordered synonym table.
// Entries without any non-empty form are ignored.
func NewResolver(t Table) *Resolver {
	r := &Resolver{
		table:    make(Table, 0, len(t)),
		toRaw:    make(map[string]string),
		toSpoken: make(map[string]string),
	}

	for _, e := range t {
		preferred := e.Preferred()
		if preferred == "" {
			continue
		}
		r.table = append(r.table, Entry{Raw: e.Raw, Forms: append([]string(nil), e.Forms...)})

		if _, ok := r.toSpoken[e.Raw]; !ok {
			r.toSpoken[e.Raw] = preferred
		}
		for _, f := range e.Forms {
			if f == "" {
				continue
			}
			if _, ok := r.toRaw[f]; !ok {
				r.toRaw[f] = e.Raw
			}
		}
	}
	return r
}

// Merge returns a new resolver whose table is overrides followed by every
// entry of r whose raw name the overrides do not mention. Overrides
// therefore win both directions of resolution.
func (r *Resolver) Merge(overrides Table) *Resolver {
	if len(overrides) == 0 && r != nil {
		return r
	}

	seen := make(map[string]struct{}, len(overrides))
	merged := make(Table, 0, len(overrides)+r.Len())
	for _, e := range overrides {
		seen[e.Raw] = struct{}{}
		merged = append(merged, e)
	}
	if r != nil {
		for _, e := range r.table {
			if _, ok := seen[e.Raw]; ok {
				continue
			}
			merged = append(merged, e)
		}
	}
	return NewResolver(merged)
}

// Len returns the number of usable entries.
func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.table)
}

// Table returns a copy of the resolver's table.
func (r *Resolver) Table() Table {
	if r == nil {
		return nil
	}
	out := make(Table, len(r.table))
	for i, e := range r.table {
		out[i] = Entry{Raw: e.Raw, Forms: append([]string(nil), e.Forms...)}
	}
	return out
}

// ResolveToRaw returns the raw name a spoken form belongs to. Input that is
// not a known synonym is returned unchanged.
func (r *Resolver) ResolveToRaw(spokenOrRaw string) string {
	if r == nil {
		return spokenOrRaw
	}
	if raw, ok := r.toRaw[spokenOrRaw]; ok {
		return raw
	}
	return spokenOrRaw
}

// ResolveToSpoken returns the preferred spoken form of a raw device name,
// or the raw name itself when no synonym is configured.
func (r *Resolver) ResolveToSpoken(rawName string) string {
	if r == nil {
		return rawName
	}
	if spoken, ok := r.toSpoken[rawName]; ok {
		return spoken
	}
	return rawName
}

// ListSpoken maps raw names to spoken names in order.
//
// A synonym is skipped when the same spoken name is already in the output.
// Names without a synonym pass through untouched, duplicates included.
func (r *Resolver) ListSpoken(rawNames []string) []string {
	out := make([]string, 0, len(rawNames))
	emitted := make(map[string]struct{})
	for _, raw := range rawNames {
		spoken, ok := "", false
		if r != nil {
			spoken, ok = r.toSpoken[raw]
		}
		if !ok {
			emitted[raw] = struct{}{}
			out = append(out, raw)
			continue
		}
		if _, dup := emitted[spoken]; dup {
			continue
		}
		emitted[spoken] = struct{}{}
		out = append(out, spoken)
	}
	return out
}
