package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// StatusView is the result of status.
type StatusView struct {
	Database string `json:"database"`
	Items    int    `json:"items"`
	Trees    int    `json:"trees"`
	Orphans  int    `json:"orphans"`
	Pending  int    `json:"pending"`
	Failed   int    `json:"failed"`
	Remote   string `json:"remote,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Text implements texter.
func (v StatusView) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "database: %s\n", v.Database)
	fmt.Fprintf(&b, "items:    %d in %d trees, %d waiting for their parent\n", v.Items, v.Trees, v.Orphans)
	fmt.Fprintf(&b, "pending:  %d changes to push", v.Pending)
	if v.Failed > 0 {
		fmt.Fprintf(&b, ", %d of them failed before", v.Failed)
	}
	b.WriteByte('\n')
	if v.Remote == "" {
		b.WriteString("remote:   none\n")
		return b.String()
	}
	token := v.Token
	if token == "" {
		token = "never synced"
	}
	fmt.Fprintf(&b, "remote:   %s (%s)\n", v.Remote, token)
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the local outline and its sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, rootOpts)
		},
	}
}

func runStatus(cmd *cobra.Command, opts *RootOptions) error {
	s, err := openSession(cmd, opts, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	view := StatusView{Database: s.cfg.Database}
	err = s.Do(ctx, func() {
		trees := s.engine.Trees()
		view.Items = s.engine.Records().Len()
		view.Trees = len(trees.Roots())
		view.Orphans = trees.OrphanCount()
	})
	if err != nil {
		return err
	}

	pending, err := s.store.Pending(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, CodeDatabase, "failed to read outbox", err)
	}
	view.Pending = len(pending)
	for _, e := range pending {
		if e.Attempts > 0 {
			view.Failed++
		}
	}

	if s.remote != nil {
		view.Remote = s.remote.Name()
		if view.Token, err = s.store.Token(ctx, s.remote.Name()); err != nil {
			return WrapExitError(ExitFailure, CodeDatabase, "failed to read sync token", err)
		}
	}
	return opts.output(cmd).Success(view)
}
