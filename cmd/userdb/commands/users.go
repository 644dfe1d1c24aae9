package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/userdb/userdb/internal/users"
)

func newInitSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init-schema",
		Short: "Create the users table if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// newApp already ensures the schema
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			fmt.Fprintln(cmd.OutOrStdout(), "Table checked/created.")
			return nil
		},
	}
}

func newAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "add <name> <email>",
		Short:   "Add a user unless the name or email is taken",
		Example: `  userdb add alice alice@example.com`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.service.AddUser(cmd.Context(), &users.AddUserRequest{Name: args[0], Email: args[1]})
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}
}

func newUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "update <id> <name> <email>",
		Short:   "Overwrite the name and email of a user",
		Example: `  userdb update 1 alice alice@example.org`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.service.UpdateUser(cmd.Context(), &users.UpdateUserRequest{ID: id, Name: args[1], Email: args[2]})
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|name|email>",
		Short: "Delete every user whose id, name or email equals the identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.service.DeleteUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users ordered by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			list, err := a.service.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			return printUsers(cmd.OutOrStdout(), list)
		},
	}
}

func newSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search [keyword]",
		Short: "Find users whose name or email contains the keyword, ignoring case",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyword := ""
			if len(args) > 0 {
				keyword = args[0]
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			list, err := a.service.SearchUsers(cmd.Context(), keyword)
			if err != nil {
				return err
			}
			return printUsers(cmd.OutOrStdout(), list)
		},
	}
}

func printResult(w io.Writer, result *users.Result) error {
	if jsonOutput {
		return json.NewEncoder(w).Encode(result)
	}

	switch result.Outcome {
	case users.OutcomeCreated:
		fmt.Fprintf(w, "User added: %s\n", formatUser(result.User))
	case users.OutcomeUpdated:
		fmt.Fprintf(w, "User updated: %s\n", formatUser(result.User))
	case users.OutcomeDeleted:
		fmt.Fprintf(w, "%d user(s) deleted.\n", result.Affected)
	case users.OutcomeAlreadyExists:
		fmt.Fprintln(w, "User with same name or email already exists.")
	case users.OutcomeNotFound:
		fmt.Fprintln(w, "User not found.")
	}
	return nil
}

func printUsers(w io.Writer, list []*users.User) error {
	if jsonOutput {
		return json.NewEncoder(w).Encode(list)
	}
	for _, u := range list {
		fmt.Fprintln(w, formatUser(u))
	}
	return nil
}

func formatUser(u *users.User) string {
	return fmt.Sprintf("%d | %s | %s", u.ID, u.Name, u.Email)
}
