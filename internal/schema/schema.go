// Package schema validates and converts outline documents, the nested YAML
// or JSON form used by import and export.
//
//	title: Groceries
//	items:
//	  - text: Dairy
//	    children:
//	      - text: Milk
//	        state: done
//	        tag: green
//
// Documents are checked against an embedded CUE schema before conversion.
package schema

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/outline/internal/record"
)

//go:embed outline.cue
var outlineCUE string

// Document is a nested outline.
type Document struct {
	Title string `yaml:"title,omitempty" json:"title,omitempty"`
	Items []Item `yaml:"items" json:"items"`
}

// Item is one entry of a Document.
type Item struct {
	ID       string `yaml:"id,omitempty" json:"id,omitempty"`
	Text     string `yaml:"text" json:"text"`
	State    string `yaml:"state,omitempty" json:"state,omitempty"`
	Tag      string `yaml:"tag,omitempty" json:"tag,omitempty"`
	Children []Item `yaml:"children,omitempty" json:"children,omitempty"`
}

// ValidationError is one schema violation.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationErrors lists every violation found in a document.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		if v.Path == "" {
			msgs[i] = v.Message
		} else {
			msgs[i] = v.Path + ": " + v.Message
		}
	}
	return "invalid outline document: " + strings.Join(msgs, "; ")
}

// Parse decodes YAML or JSON, validates it and returns the document.
// Schema violations are returned as ValidationErrors.
func Parse(data []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse outline document: %w", err)
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode outline document: %w", err)
	}
	return &doc, nil
}

// Validate checks a decoded document against the schema.
func Validate(raw any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(outlineCUE, cue.Filename("outline.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile outline schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Document"))

	value := ctx.Encode(raw)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode outline document: %w", err)
	}

	err := def.Unify(value).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}
	var out ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		out = append(out, ValidationError{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}
	return out
}

// Records flattens the document. Items without an id get one from gen.
// Top-level items become roots at position 0.
func (d *Document) Records(gen record.IDGenerator) ([]record.Record, error) {
	var out []record.Record
	var walk func(items []Item, parent *string) error
	walk = func(items []Item, parent *string) error {
		for i, it := range items {
			id := it.ID
			if id == "" {
				id = gen.NewID()
			}
			r := record.Record{ID: id, Text: record.Ptr(it.Text), ParentID: parent}
			if parent != nil {
				r.Position = i
			}
			if it.State != "" {
				s, err := record.ParseState(it.State)
				if err != nil {
					return err
				}
				r.State = &s
			}
			if it.Tag != "" {
				t, err := record.ParseTag(it.Tag)
				if err != nil {
					return err
				}
				r.Tag = &t
			}
			out = append(out, r)
			if err := walk(it.Children, record.Ptr(id)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(d.Items, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// FromTrees builds a document from trees, keeping item ids.
func FromTrees(title string, trees []*record.Item) *Document {
	doc := &Document{Title: title, Items: []Item{}}
	for _, t := range trees {
		doc.Items = append(doc.Items, fromNode(t))
	}
	return doc
}

func fromNode(n *record.Item) Item {
	data := n.Data()
	it := Item{ID: n.ID(), Text: data.TextValue()}
	if data.State != nil {
		it.State = data.State.String()
	}
	if data.Tag != nil {
		it.Tag = data.Tag.String()
	}
	for _, c := range n.Children() {
		it.Children = append(it.Children, fromNode(c))
	}
	return it
}

// Marshal encodes the document as YAML.
func (d *Document) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal outline document: %w", err)
	}
	return out, nil
}
