package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/outline/internal/record"
	"github.com/roach88/outline/internal/tree"
	"github.com/roach88/outline/internal/treestore"
)

func stateChoices() string { return strings.Join(record.StateNames(), "|") }

// ChangeView is the result of the commands that edit the outline.
type ChangeView struct {
	Action string   `json:"action"`
	IDs    []string `json:"ids"`
}

// Text implements texter.
func (v ChangeView) Text() string {
	noun := "items"
	if len(v.IDs) == 1 {
		noun = "item"
	}
	return fmt.Sprintf("%s %d %s: %s", v.Action, len(v.IDs), noun, strings.Join(v.IDs, ", "))
}

// editError maps tree and store errors onto exit errors.
func editError(message string, err error) error {
	switch {
	case errors.Is(err, treestore.ErrUnknownID):
		return WrapExitError(ExitCommandError, CodeNotFound, message, err)
	case errors.Is(err, treestore.ErrDuplicateID),
		errors.Is(err, tree.ErrCycle),
		errors.Is(err, tree.ErrIndexOutOfRange):
		return WrapExitError(ExitCommandError, CodeInput, message, err)
	}
	return WrapExitError(ExitFailure, CodeDatabase, message, err)
}

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	ID     string
	Parent string
	At     int // -1 appends
	State  string
	Tag    string
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Add an item",
		Long: `Add an item to the outline, as a new top-level tree or under a parent.

Examples:
  outline add "Groceries"
  outline add "Milk" --parent <groceries-id>
  outline add "Eggs" --parent <groceries-id> --at 0 --tag yellow`,
		Args: requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "item id (default: a new UUIDv7)")
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "id of the parent item (default: top level)")
	cmd.Flags().IntVar(&opts.At, "at", -1, "position among the parent's children (default: last)")
	cmd.Flags().StringVar(&opts.State, "state", "", "item state ("+stateChoices()+")")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "color tag (red|orange|yellow|green|blue|purple)")

	return cmd
}

func runAdd(cmd *cobra.Command, opts *AddOptions, text string) error {
	data, err := record.ParseData(text, opts.State, opts.Tag)
	if err != nil {
		return WrapExitError(ExitCommandError, CodeInput, "invalid item", err)
	}
	id := opts.ID
	if id == "" {
		id = record.UUIDv7Generator{}.NewID()
	}

	s, err := openSession(cmd, opts.RootOptions, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	var addErr error
	err = s.Do(cmd.Context(), func() {
		trees := s.engine.Trees()
		node := record.NewItem(id, data)
		if opts.Parent == "" {
			addErr = trees.Add(node)
			return
		}
		if trees.Contains(id) {
			addErr = fmt.Errorf("add %q: %w", id, treestore.ErrDuplicateID)
			return
		}
		parent, ok := trees.Node(opts.Parent)
		if !ok {
			addErr = fmt.Errorf("parent %q: %w", opts.Parent, treestore.ErrUnknownID)
			return
		}
		at := opts.At
		if at < 0 || at > parent.ChildCount() {
			at = parent.ChildCount()
		}
		addErr = parent.Insert([]*record.Item{node}, at)
	})
	if err != nil {
		return err
	}
	if addErr != nil {
		return editError("failed to add item", addErr)
	}
	return opts.output(cmd).Success(ChangeView{Action: "added", IDs: []string{id}})
}

// EditOptions holds flags for the edit command.
type EditOptions struct {
	*RootOptions
	Text  string
	State string
	Tag   string
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit <item-id>",
		Short: "Change an item's text, state or tag",
		Long: `Change the content of an item. Only the given flags are applied; an
empty --state or --tag clears the field.

Examples:
  outline edit <id> --text "Oat milk"
  outline edit <id> --state done
  outline edit <id> --tag ""`,
		Args: requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Text, "text", "", "new text")
	cmd.Flags().StringVar(&opts.State, "state", "", "new state ("+stateChoices()+")")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "new color tag (red|orange|yellow|green|blue|purple)")

	return cmd
}

func runEdit(cmd *cobra.Command, opts *EditOptions, id string) error {
	flags := cmd.Flags()
	if !flags.Changed("text") && !flags.Changed("state") && !flags.Changed("tag") {
		return NewExitError(ExitCommandError, CodeInput, "nothing to change: pass --text, --state or --tag")
	}
	// Parse up front so a bad name fails before the database is opened.
	parsed, err := record.ParseData(opts.Text, opts.State, opts.Tag)
	if err != nil {
		return WrapExitError(ExitCommandError, CodeInput, "invalid item", err)
	}

	s, err := openSession(cmd, opts.RootOptions, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	found := false
	err = s.Do(cmd.Context(), func() {
		n, ok := s.engine.Trees().Node(id)
		if !ok {
			return
		}
		found = true
		data := n.Data()
		if flags.Changed("text") {
			data.Text = parsed.Text
		}
		if flags.Changed("state") {
			data.State = parsed.State
		}
		if flags.Changed("tag") {
			data.Tag = parsed.Tag
		}
		if !data.Equal(n.Data()) {
			n.SetData(data)
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return NewExitError(ExitCommandError, CodeNotFound, fmt.Sprintf("no item %q", id))
	}
	return opts.output(cmd).Success(ChangeView{Action: "edited", IDs: []string{id}})
}

// MoveOptions holds flags for the move command.
type MoveOptions struct {
	*RootOptions
	Parent string
	At     int
}

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MoveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "move <item-id>",
		Short: "Move an item and its subtree",
		Long: `Move an item under another parent, or to the top level when --parent is
omitted. The item keeps its id.

Examples:
  outline move <id> --parent <other-id> --at 0
  outline move <id>`,
		Args: requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMove(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Parent, "parent", "", "id of the new parent (default: top level)")
	cmd.Flags().IntVar(&opts.At, "at", 0, "position among the new siblings")

	return cmd
}

func runMove(cmd *cobra.Command, opts *MoveOptions, id string) error {
	s, err := openSession(cmd, opts.RootOptions, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	var parent *string
	if opts.Parent != "" {
		parent = record.Ptr(opts.Parent)
	}
	var moveErr error
	err = s.Do(cmd.Context(), func() {
		moveErr = s.engine.Trees().Relocate(id, parent, opts.At)
	})
	if err != nil {
		return err
	}
	if moveErr != nil {
		return editError("failed to move item", moveErr)
	}
	return opts.output(cmd).Success(ChangeView{Action: "moved", IDs: []string{id}})
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <item-id>...",
		Short: "Delete items and their subtrees",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, rootOpts, args)
		},
	}
}

func runDelete(cmd *cobra.Command, opts *RootOptions, ids []string) error {
	s, err := openSession(cmd, opts, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	var unknown []string
	err = s.Do(cmd.Context(), func() {
		trees := s.engine.Trees()
		for _, id := range ids {
			if !trees.Contains(id) {
				unknown = append(unknown, id)
			}
		}
		if len(unknown) == 0 {
			trees.DeleteItems(ids)
		}
	})
	if err != nil {
		return err
	}
	if len(unknown) > 0 {
		return NewExitError(ExitCommandError, CodeNotFound, fmt.Sprintf("no item %s", strings.Join(unknown, ", ")))
	}
	return opts.output(cmd).Success(ChangeView{Action: "deleted", IDs: ids})
}
