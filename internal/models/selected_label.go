package models

type LabelSourceKind int

const (
	LabelFromNowhere LabelSourceKind = iota
	LabelFromOperation
	LabelFromOtherItem
)

// Other-item tags tell the backend how the related item is connected.
const (
	TagSameRevision  = "same_revision"
	TagSuccessorItem = "successor_item"
	TagSourceItem    = "source_item"
)

// LabelSource is the recipe used to resolve an item's selected label.
type LabelSource struct {
	Kind        LabelSourceKind
	OperationID int64
	OtherItemID int64
	OtherItem   *Item
	Tags        []string

	// OtherLabel is a copy of the related item's label when it was already
	// resolved at the time the recipe was created.
	OtherLabel         *Label
	OtherLabelResolved bool
}

// SelectedLabel is the lazily computed branch/tag an item is viewed on.
type SelectedLabel struct {
	resolved bool
	label    *Label
	source   *LabelSource
}

func FromOperation(opID int64) LabelSource {
	return LabelSource{Kind: LabelFromOperation, OperationID: opID}
}

// FromOtherItem builds a recipe pointing at other, copying its label when known.
func FromOtherItem(other *Item, tags ...string) LabelSource {
	src := LabelSource{Kind: LabelFromOtherItem, Tags: tags}
	if other == nil {
		return LabelSource{}
	}
	src.OtherItemID = other.ID
	src.OtherItem = other
	if lbl, ok := other.selected.Get(); ok {
		src.OtherLabelResolved = true
		if lbl != nil {
			cp := *lbl
			src.OtherLabel = &cp
		}
	}
	return src
}

// SetSource records how the label should be resolved. It is a no-op once resolved.
func (s *SelectedLabel) SetSource(src LabelSource) {
	if s.resolved {
		return
	}
	s.source = &src
}

func (s *SelectedLabel) Source() (LabelSource, bool) {
	if s.resolved || s.source == nil {
		return LabelSource{}, false
	}
	return *s.source, true
}

// Resolve memoizes label permanently and drops the recipe. A nil label means
// no branch or tag applies.
func (s *SelectedLabel) Resolve(label *Label) {
	if s.resolved {
		return
	}
	s.resolved = true
	s.source = nil
	if label != nil {
		cp := *label
		cp.Action = ActionNone
		s.label = &cp
	}
}

// Get returns the resolved label and whether resolution already happened.
func (s *SelectedLabel) Get() (*Label, bool) {
	return s.label, s.resolved
}
