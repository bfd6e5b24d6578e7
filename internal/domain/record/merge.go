package record

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// SimilarityThreshold is the normalized-similarity bound above which two
// history statements count as the same fact.
const SimilarityThreshold = 0.85

// Merger reconciles findings into record sections. It is pure over its
// inputs: callers hand in the current sections and receive them mutated plus
// a change summary; persistence and verification registration happen
// elsewhere.
type Merger struct {
	rollingCap int
}

// NewMerger creates a Merger with the given rolling-section cap.
func NewMerger(rollingCap int) *Merger {
	if rollingCap <= 0 {
		rollingCap = DefaultRollingCap
	}
	return &Merger{rollingCap: rollingCap}
}

// Merge applies the findings to the sections. All findings are validated
// before any is applied, so a malformed finding rejects the whole bundle
// with no partial changes. Findings with no date merge at now and are marked
// approximate.
func (m *Merger) Merge(sections map[SectionKind]*Section, findings []Finding, now time.Time) (*ChangeSummary, error) {
	for i := range findings {
		if err := findings[i].Validate(); err != nil {
			return nil, err
		}
	}

	summary := newChangeSummary()
	for _, f := range findings {
		kind, _ := f.TargetSection()
		section := sections[kind]
		if section == nil {
			return nil, &ValidationError{Field: "sections", Reason: "missing section " + string(kind)}
		}

		switch kind.Strategy() {
		case StrategyRollingCapped:
			m.mergeRolling(section, f, now, summary)
		case StrategyAppendNovel:
			m.mergeAppendNovel(section, f, now, summary)
		case StrategyAppendOnly:
			m.mergeAppendOnly(section, f, now, summary)
		}
	}

	for _, kind := range summary.ChangedSections() {
		sections[kind].UpdatedAt = now
	}
	return summary, nil
}

// mergeRolling value-replaces on a (name, date) match, otherwise inserts,
// then keeps only the cap most recent entries by date.
func (m *Merger) mergeRolling(section *Section, f Finding, now time.Time, summary *ChangeSummary) {
	date := now
	approximate := true
	if f.Date != nil {
		date = *f.Date
		approximate = false
	}

	for i := range section.Entries {
		e := &section.Entries[i]
		if Normalize(e.Name) == Normalize(f.Name) && sameDay(e.EffectiveDate, date) {
			if e.Value == f.Value && e.Unit == f.Unit {
				summary.Skipped++
				return
			}
			e.Value = f.Value
			e.Unit = f.Unit
			summary.Replaced++
			summary.Changed[section.Kind] = true
			summary.note(section.Kind, "replaced %s @%s", f.Name, date.Format("2006-01-02"))
			return
		}
	}

	section.Entries = append(section.Entries, Entry{
		ID:              uuid.New(),
		Name:            f.Name,
		Value:           f.Value,
		Unit:            f.Unit,
		EffectiveDate:   date,
		ApproximateDate: approximate,
		CreatedAt:       now,
	})
	sortNewestFirst(section.Entries)
	if len(section.Entries) > m.rollingCap {
		section.Entries = section.Entries[:m.rollingCap]
	}
	summary.Appended++
	summary.Changed[section.Kind] = true
	summary.note(section.Kind, "added %s @%s", f.Name, date.Format("2006-01-02"))
}

// mergeAppendNovel appends only statements novel under normalization. A
// statement contradicting an existing one (same fact, opposite polarity) is
// appended anyway and both sides are flagged for review; nothing is ever
// removed or auto-resolved.
func (m *Merger) mergeAppendNovel(section *Section, f Finding, now time.Time, summary *ChangeSummary) {
	fBase, fNegated := StripNegation(f.Name)

	// Full scan before deciding: a same-polarity match anywhere means the
	// statement already exists, even when an opposite-polarity sibling sits
	// earlier in the section. Otherwise re-merging the same bundle would
	// append the "contradiction" again every time.
	contradicted := -1
	for i := range section.Entries {
		e := &section.Entries[i]
		eBase, eNegated := StripNegation(e.Name)
		if Similarity(fBase, eBase) < SimilarityThreshold {
			continue
		}
		if fNegated == eNegated {
			// Same fact, same polarity: not novel.
			summary.Skipped++
			return
		}
		if contradicted < 0 {
			contradicted = i
		}
	}

	if contradicted >= 0 {
		// Contradiction: retain both, flag both.
		e := &section.Entries[contradicted]
		flag := &ReviewFlag{
			Reason:    "contradicts \"" + e.Name + "\"",
			FlaggedAt: now,
		}
		if e.ReviewFlag == nil {
			e.ReviewFlag = &ReviewFlag{Reason: "contradicted by \"" + f.Name + "\"", FlaggedAt: now}
			summary.Flagged++
		}
		name := e.Name
		section.Entries = append(section.Entries, m.historyEntry(f, now, flag))
		summary.Appended++
		summary.Flagged++
		summary.Changed[section.Kind] = true
		summary.note(section.Kind, "flagged contradiction %q vs %q", f.Name, name)
		return
	}

	section.Entries = append(section.Entries, m.historyEntry(f, now, nil))
	summary.Appended++
	summary.Changed[section.Kind] = true
	summary.note(section.Kind, "added %s", f.Name)
}

func (m *Merger) historyEntry(f Finding, now time.Time, flag *ReviewFlag) Entry {
	date := now
	approximate := true
	if f.Date != nil {
		date = *f.Date
		approximate = false
	}
	return Entry{
		ID:              uuid.New(),
		Name:            f.Name,
		Value:           f.Value,
		EffectiveDate:   date,
		ApproximateDate: approximate,
		ReviewFlag:      flag,
		CreatedAt:       now,
	}
}

// mergeAppendOnly appends a timestamped addendum; earlier blocks are
// immutable to this component.
func (m *Merger) mergeAppendOnly(section *Section, f Finding, now time.Time, summary *ChangeSummary) {
	addendumAt := now
	entry := m.historyEntry(f, now, nil)
	entry.AddendumAt = &addendumAt
	section.Entries = append(section.Entries, entry)
	summary.Appended++
	summary.Changed[section.Kind] = true
	summary.note(section.Kind, "addendum %s", f.Name)
}

func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].EffectiveDate.After(entries[j].EffectiveDate)
	})
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
