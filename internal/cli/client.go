package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/libdesk/libdesk/internal/apiclient"
)

// FileTokenStore keeps the bearer token in a file so consecutive commands share a session.
type FileTokenStore struct {
	Path string
}

func (s *FileTokenStore) Token() string {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (s *FileTokenStore) SetToken(token string) {
	if token == "" {
		s.Clear()
		return
	}
	_ = os.MkdirAll(filepath.Dir(s.Path), 0o700)
	_ = os.WriteFile(s.Path, []byte(token+"\n"), 0o600)
}

func (s *FileTokenStore) Clear() {
	_ = os.Remove(s.Path)
}

func defaultTokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".libdesk-token"
	}
	return filepath.Join(dir, "libdesk", "token")
}

// clientOptions are shared by the client subcommands.
type clientOptions struct {
	BaseURL   string
	TokenFile string
}

func (o *clientOptions) newClient(errOut io.Writer) *apiclient.Client {
	return apiclient.New(o.BaseURL,
		apiclient.WithTokenStore(&FileTokenStore{Path: o.TokenFile}),
		apiclient.OnUnauthorized(func() {
			fmt.Fprintln(errOut, "Session expired, run 'libdesk client login' again")
		}),
	)
}

func newClientCommand() *cobra.Command {
	opts := &clientOptions{}

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Talk to a running library API",
	}
	cmd.PersistentFlags().StringVar(&opts.BaseURL, "api", apiclient.DefaultBaseURL, "Base URL of the API including /api")
	cmd.PersistentFlags().StringVar(&opts.TokenFile, "token-file", defaultTokenPath(), "Where the session token is kept")

	cmd.AddCommand(
		newClientLoginCommand(opts),
		newClientSearchCommand(opts),
		newClientBorrowCommand(opts),
	)
	return cmd
}

func newClientLoginCommand(opts *clientOptions) *cobra.Command {
	var uid, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.newClient(cmd.ErrOrStderr())
			res, err := client.Users.Login(cmd.Context(), uid, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", res.User.Name, res.User.IdentityTypeName)
			return nil
		},
	}
	cmd.Flags().StringVar(&uid, "uid", "", "Account id (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (required)")
	_ = cmd.MarkFlagRequired("uid")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newClientSearchCommand(opts *clientOptions) *cobra.Command {
	var field string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalogue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.newClient(cmd.ErrOrStderr())
			books, err := client.Books.Search(cmd.Context(), apiclient.SearchField(field), args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tISBN\tAVAILABLE")
			for _, b := range books {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\n", b.BookID, b.Title, b.ISBN, b.CurrentStock, b.TotalStock)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&field, "by", "", "Restrict to one field: name, author, tag, publisher or isbn")
	return cmd
}

func newClientBorrowCommand(opts *clientOptions) *cobra.Command {
	var borrower string

	cmd := &cobra.Command{
		Use:   "borrow <book-id>",
		Short: "Borrow a book for yourself, or for another borrower as an administrator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.newClient(cmd.ErrOrStderr())
			res, err := client.Books.Borrow(cmd.Context(), args[0], borrower)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (record %d)\n", res.Message, res.RecordID)
			return nil
		},
	}
	cmd.Flags().StringVar(&borrower, "for", "", "Borrower uid (administrators only)")
	return cmd
}
