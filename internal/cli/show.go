package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/outline/internal/record"
	"github.com/roach88/outline/internal/schema"
)

// OutlineView is the result of show.
type OutlineView struct {
	Document *schema.Document `json:"document"`
	Orphans  int              `json:"orphans"`

	text string
}

// Text implements texter.
func (v OutlineView) Text() string {
	if v.text == "" {
		return "The outline is empty."
	}
	if v.Orphans > 0 {
		return fmt.Sprintf("%s(%d items waiting for their parent)", v.text, v.Orphans)
	}
	return v.text
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [item-id]",
		Short: "Print the outline",
		Long: `Print the outline, or the subtree rooted at one item.

Each line shows an item's text and its id in parentheses. Items whose parent
has not arrived yet are counted, not shown.

Examples:
  outline show
  outline show 0190f3c2-7d4e-7c1a-9f0e-2b4d6a8c0e1f
  outline show --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, rootOpts, args)
		},
	}
}

func runShow(cmd *cobra.Command, opts *RootOptions, args []string) error {
	s, err := openSession(cmd, opts, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	var (
		view    OutlineView
		missing bool
	)
	err = s.Do(cmd.Context(), func() {
		trees := s.engine.Trees()
		roots := trees.Roots()
		if len(args) == 1 {
			n, ok := trees.Node(args[0])
			if !ok {
				missing = true
				return
			}
			roots = []*record.Item{n}
		}
		view = OutlineView{
			Document: schema.FromTrees("", roots),
			Orphans:  trees.OrphanCount(),
			text:     record.Render(roots),
		}
	})
	if err != nil {
		return err
	}
	if missing {
		return NewExitError(ExitCommandError, CodeNotFound, fmt.Sprintf("no item %q", args[0]))
	}
	return opts.output(cmd).Success(view)
}
