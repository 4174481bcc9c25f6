package record

import (
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/outline/internal/tree"
)

// State is the completion state of an item.
type State int

// Persisted encodings. 1 is retired and must not be reused.
const (
	StateInProgress State = 0
	StateDone       State = 2
	StateTrashed    State = 3
)

// Valid reports whether s is one of the persisted encodings.
func (s State) Valid() bool {
	return s == StateInProgress || s == StateDone || s == StateTrashed
}

func (s State) String() string {
	switch s {
	case StateInProgress:
		return "in_progress"
	case StateDone:
		return "done"
	case StateTrashed:
		return "trashed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var states = [...]State{StateInProgress, StateDone, StateTrashed}

// StateNames lists the names ParseState accepts.
func StateNames() []string {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = s.String()
	}
	return names
}

// ParseState returns the state with the given name.
func ParseState(name string) (State, error) {
	for _, s := range states {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", name)
}

// Tag is a colour label.
type Tag int

// Persisted encodings.
const (
	TagRed Tag = iota
	TagOrange
	TagYellow
	TagGreen
	TagBlue
	TagPurple
)

var tagNames = [...]string{"red", "orange", "yellow", "green", "blue", "purple"}

// Valid reports whether t is one of the persisted encodings.
func (t Tag) Valid() bool { return t >= TagRed && t <= TagPurple }

func (t Tag) String() string {
	if t.Valid() {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", int(t))
}

// ParseTag returns the tag with the given name.
func ParseTag(name string) (Tag, error) {
	for i, n := range tagNames {
		if n == name {
			return Tag(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tag %q", name)
}

// Record is the flat snapshot of one outline item.
// A nil ParentID marks a root. Position is the sibling index at snapshot time.
type Record struct {
	ID       string  `json:"id" yaml:"id"`
	Text     *string `json:"text,omitempty" yaml:"text,omitempty"`
	State    *State  `json:"state,omitempty" yaml:"state,omitempty"`
	Tag      *Tag    `json:"tag,omitempty" yaml:"tag,omitempty"`
	ParentID *string `json:"parentID,omitempty" yaml:"parentID,omitempty"`
	Position int     `json:"position" yaml:"position"`
}

// Equal reports whether r and other agree on every field.
func (r Record) Equal(other Record) bool {
	return r.ID == other.ID &&
		r.Position == other.Position &&
		PtrEqual(r.Text, other.Text) &&
		PtrEqual(r.State, other.State) &&
		PtrEqual(r.Tag, other.Tag) &&
		PtrEqual(r.ParentID, other.ParentID)
}

// Normalize returns r with its text in Unicode NFC, so that canonically
// equivalent spellings compare equal.
func (r Record) Normalize() Record {
	if r.Text != nil && !norm.NFC.IsNormalString(*r.Text) {
		r.Text = Ptr(norm.NFC.String(*r.Text))
	}
	return r
}

// Data returns the item content carried by r.
func (r Record) Data() ItemData {
	return ItemData{Text: clonePtr(r.Text), State: clonePtr(r.State), Tag: clonePtr(r.Tag)}
}

// Update converts r into an Update for the tree store.
func (r Record) Update() Update {
	return Update{ID: r.ID, Data: r.Data(), ParentID: clonePtr(r.ParentID), Position: r.Position}
}

// Validate checks the encodings of r.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record has empty id")
	}
	if r.State != nil && !r.State.Valid() {
		return fmt.Errorf("record %q: invalid state %d", r.ID, int(*r.State))
	}
	if r.Tag != nil && !r.Tag.Valid() {
		return fmt.Errorf("record %q: invalid tag %d", r.ID, int(*r.Tag))
	}
	if r.Position < 0 {
		return fmt.Errorf("record %q: negative position %d", r.ID, r.Position)
	}
	if r.ParentID != nil && *r.ParentID == r.ID {
		return fmt.Errorf("record %q is its own parent", r.ID)
	}
	return nil
}

// ItemData is the content of an outline item, the payload of its tree node.
type ItemData struct {
	Text  *string
	State *State
	Tag   *Tag
}

// Equal reports whether d and other carry the same content.
func (d ItemData) Equal(other ItemData) bool {
	return PtrEqual(d.Text, other.Text) && PtrEqual(d.State, other.State) && PtrEqual(d.Tag, other.Tag)
}

// ParseData builds item content from its text and the names of its state
// and tag. Empty names leave the field unset.
func ParseData(text, state, tag string) (ItemData, error) {
	data := ItemData{Text: Ptr(text)}
	if state != "" {
		s, err := ParseState(state)
		if err != nil {
			return data, err
		}
		data.State = &s
	}
	if tag != "" {
		t, err := ParseTag(tag)
		if err != nil {
			return data, err
		}
		data.Tag = &t
	}
	return data, nil
}

// TextValue returns the text, or "" when unset.
func (d ItemData) TextValue() string {
	if d.Text == nil {
		return ""
	}
	return *d.Text
}

// Item is an outline node.
type Item = tree.Node[ItemData]

// NewItem creates a detached item.
func NewItem(id string, data ItemData) *Item {
	return tree.New(id, data)
}

// Update is a record prepared for application to the tree store.
type Update struct {
	ID       string
	Data     ItemData
	ParentID *string
	Position int
}

// Ptr returns a pointer to a copy of v.
func Ptr[T any](v T) *T { return &v }

// PtrEqual reports whether a and b are both nil or point to equal values.
func PtrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
