package tags

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// ErrInconsistentTable is returned when restored posting lists disagree.
var ErrInconsistentTable = errors.New("tags: inconsistent tag table")

// Posting is one key of the table with its sorted values.
type Posting struct {
	Key    uint64
	Values []uint64
}

// Table is the bidirectional label/tag mapping.
// It is not safe for concurrent use; the owner serializes access.
type Table struct {
	labelTags map[uint64]*roaring64.Bitmap
	tagLabels map[uint64]*roaring64.Bitmap
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		labelTags: make(map[uint64]*roaring64.Bitmap),
		tagLabels: make(map[uint64]*roaring64.Bitmap),
	}
}

// Add maps tag to every label and every label to tag.
func (t *Table) Add(labels []uint64, tag uint64) {
	if len(labels) == 0 {
		return
	}
	members, ok := t.tagLabels[tag]
	if !ok {
		members = roaring64.New()
		t.tagLabels[tag] = members
	}
	members.AddMany(labels)

	for _, label := range labels {
		set, ok := t.labelTags[label]
		if !ok {
			set = roaring64.New()
			t.labelTags[label] = set
		}
		set.Add(tag)
	}
}

// Tags returns the sorted tags of label, empty if none.
func (t *Table) Tags(label uint64) []uint64 {
	set, ok := t.labelTags[label]
	if !ok {
		return []uint64{}
	}
	return set.ToArray()
}

// Members returns a copy of the labels mapped to any of tags.
func (t *Table) Members(tags ...uint64) *roaring64.Bitmap {
	out := roaring64.New()
	for _, tag := range tags {
		if members, ok := t.tagLabels[tag]; ok {
			out.Or(members)
		}
	}
	return out
}

// Reset clears both mappings.
func (t *Table) Reset() {
	clear(t.labelTags)
	clear(t.tagLabels)
}

// NumLabels returns the number of labels carrying at least one tag.
func (t *Table) NumLabels() int { return len(t.labelTags) }

// NumTags returns the number of tags with at least one label.
func (t *Table) NumTags() int { return len(t.tagLabels) }

// TagIDs returns every tag in ascending order.
func (t *Table) TagIDs() []uint64 {
	return slices.Sorted(maps.Keys(t.tagLabels))
}

// LabelPostings returns label -> tags ordered by label.
func (t *Table) LabelPostings() []Posting {
	return postings(t.labelTags)
}

// TagPostings returns tag -> labels ordered by tag.
func (t *Table) TagPostings() []Posting {
	return postings(t.tagLabels)
}

func postings(m map[uint64]*roaring64.Bitmap) []Posting {
	out := make([]Posting, 0, len(m))
	for _, key := range slices.Sorted(maps.Keys(m)) {
		out = append(out, Posting{Key: key, Values: m[key].ToArray()})
	}
	return out
}

// Restore replaces the table with persisted postings and checks that
// tag is in labelTags[label] iff label is in tagLabels[tag].
func (t *Table) Restore(labelTags, tagLabels []Posting) error {
	t.Reset()
	for _, p := range labelTags {
		for _, tag := range p.Values {
			t.Add([]uint64{p.Key}, tag)
		}
	}

	if len(tagLabels) != len(t.tagLabels) {
		t.Reset()
		return fmt.Errorf("%w: %d tags listed, %d derived", ErrInconsistentTable, len(tagLabels), len(t.tagLabels))
	}
	for _, p := range tagLabels {
		members, ok := t.tagLabels[p.Key]
		if !ok || !members.Equals(roaring64.BitmapOf(p.Values...)) {
			t.Reset()
			return fmt.Errorf("%w: tag %d", ErrInconsistentTable, p.Key)
		}
	}
	return nil
}
