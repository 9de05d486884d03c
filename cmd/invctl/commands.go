package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jrsteele09/go-inventory-session/authapi"
	"github.com/jrsteele09/go-inventory-session/gate"
	"github.com/jrsteele09/go-inventory-session/internal/utils"
	"github.com/jrsteele09/go-inventory-session/session"
	"github.com/jrsteele09/go-inventory-session/token"
	"github.com/spf13/cobra"
)

func loginCmd(opts *globalOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if email, err = prompt(in, cmd.OutOrStdout(), "Email", email); err != nil {
				return err
			}
			if password, err = prompt(in, cmd.OutOrStdout(), "Password", password); err != nil {
				return err
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				if err := a.manager.Login(cmd.Context(), authapi.Credentials{Email: email, Password: password}); err != nil {
					return a.lastError(err)
				}
				printUser(cmd.OutOrStdout(), a.manager.State())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when empty)")
	return cmd
}

func registerCmd(opts *globalOptions) *cobra.Command {
	var (
		reg        authapi.Registration
		roleID     int64
		locationID int64
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in as it",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if reg.Password, err = prompt(in, cmd.OutOrStdout(), "Password", reg.Password); err != nil {
				return err
			}
			if reg.ConfirmPassword, err = prompt(in, cmd.OutOrStdout(), "Confirm password", reg.ConfirmPassword); err != nil {
				return err
			}
			if cmd.Flags().Changed("role-id") {
				reg.RoleID = utils.Ptr(roleID)
			}
			if cmd.Flags().Changed("location-id") {
				reg.LocationID = utils.Ptr(locationID)
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				if err := a.manager.Register(cmd.Context(), reg); err != nil {
					return a.lastError(err)
				}
				printUser(cmd.OutOrStdout(), a.manager.State())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&reg.Username, "username", "u", "", "username (3-50 characters)")
	cmd.Flags().StringVarP(&reg.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&reg.Password, "password", "p", "", "password (prompted when empty)")
	cmd.Flags().StringVar(&reg.ConfirmPassword, "confirm-password", "", "password again (prompted when empty)")
	cmd.Flags().StringVar(&reg.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&reg.LastName, "last-name", "", "last name")
	cmd.Flags().Int64Var(&roleID, "role-id", 0, "role to request")
	cmd.Flags().Int64Var(&locationID, "location-id", 0, "home location")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func logoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				a.manager.Logout(cmd.Context())
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func whoamiCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and token expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				state := a.manager.State()
				if !state.IsAuthenticated {
					return a.lastError(fmt.Errorf("not signed in"))
				}
				printUser(cmd.OutOrStdout(), state)
				if at, ok := a.store.AccessToken(); ok {
					printExpiry(cmd.OutOrStdout(), at)
				}
				return nil
			})
		},
	}
}

func refreshCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				ok, err := a.manager.Refresh(cmd.Context())
				if err != nil {
					return a.lastError(err)
				}
				if !ok {
					return fmt.Errorf("refresh returned no tokens")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Access token refreshed")
				if at, ok := a.store.AccessToken(); ok {
					printExpiry(cmd.OutOrStdout(), at)
				}
				return nil
			})
		},
	}
}

func verifyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Ask the server whether the session is still valid",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				valid, err := a.manager.Verify(cmd.Context())
				if err != nil {
					return a.lastError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session valid: %t\n", valid)
				return nil
			})
		},
	}
}

func profileCmd(opts *globalOptions) *cobra.Command {
	var username, email, firstName, lastName string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update the signed-in user's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			var update authapi.ProfileUpdate
			if cmd.Flags().Changed("username") {
				update.Username = utils.Ptr(username)
			}
			if cmd.Flags().Changed("email") {
				update.Email = utils.Ptr(email)
			}
			if cmd.Flags().Changed("first-name") {
				update.FirstName = utils.Ptr(firstName)
			}
			if cmd.Flags().Changed("last-name") {
				update.LastName = utils.Ptr(lastName)
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				if err := a.manager.UpdateProfile(cmd.Context(), update); err != nil {
					return a.lastError(err)
				}
				printUser(cmd.OutOrStdout(), a.manager.State())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "new username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "new email")
	cmd.Flags().StringVar(&firstName, "first-name", "", "new first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "new last name")
	return cmd
}

func passwordCmd(opts *globalOptions) *cobra.Command {
	var current, next string

	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change the signed-in user's password",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if current, err = prompt(in, cmd.OutOrStdout(), "Current password", current); err != nil {
				return err
			}
			if next, err = prompt(in, cmd.OutOrStdout(), "New password", next); err != nil {
				return err
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				if err := a.manager.ChangePassword(cmd.Context(), current, next); err != nil {
					return a.lastError(err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Password changed")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&current, "current", "", "current password (prompted when empty)")
	cmd.Flags().StringVar(&next, "new", "", "new password (prompted when empty)")
	return cmd
}

func canCmd(opts *globalOptions) *cobra.Command {
	var (
		permissions []string
		roles       []string
		matchAny    bool
	)

	cmd := &cobra.Command{
		Use:   "can [requirement]",
		Short: "Check the session against a named route guard or ad-hoc permissions",
		Long: "Check the session against a named route guard, or against --permission/--role sets.\n\n" +
			"Named guards: " + strings.Join(gate.Names(), ", "),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requirementFromArgs(args, permissions, roles, matchAny)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), opts, func(a *app) error {
				g := gate.New(a.cfg.GetLoginPath())
				d := g.Check(a.manager.State(), req, "")
				fmt.Fprintln(cmd.OutOrStdout(), d.String())
				if !d.Allowed() {
					return fmt.Errorf("not allowed")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&permissions, "permission", nil, "required permission (repeatable)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "required role (repeatable)")
	cmd.Flags().BoolVar(&matchAny, "any", false, "match any instead of all")
	return cmd
}

func requirementFromArgs(args, permissions, roles []string, matchAny bool) (gate.Requirement, error) {
	if len(args) == 1 {
		req, ok := gate.Lookup(args[0])
		if !ok {
			return gate.Requirement{}, fmt.Errorf("unknown requirement %q (known: %s)", args[0], strings.Join(gate.Names(), ", "))
		}
		return req, nil
	}
	if len(permissions) == 0 && len(roles) == 0 {
		return gate.RequireAuthenticated, nil
	}
	mode := gate.All
	if matchAny {
		mode = gate.Any
	}
	return gate.Requirement{
		Name:           "ad-hoc",
		RequireAuth:    true,
		Permissions:    permissions,
		PermissionMode: mode,
		Roles:          roles,
		RoleMode:       mode,
	}, nil
}

func printUser(w io.Writer, state session.State) {
	u := state.User
	if u == nil {
		fmt.Fprintln(w, "Not signed in")
		return
	}
	fmt.Fprintf(w, "Signed in as %s <%s> (id %d)\n", u.FullName(), u.Email, u.ID)
	if role := u.RoleName(); role != "" {
		fmt.Fprintf(w, "  Role:        %s\n", role)
	}
	if u.Location != nil {
		fmt.Fprintf(w, "  Location:    %s\n", u.Location.Name)
	}
	perms := make([]string, 0, len(state.Permissions()))
	for p := range state.Permissions() {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	if len(perms) > 0 {
		fmt.Fprintf(w, "  Permissions: %s\n", strings.Join(perms, ", "))
	}
}

func printExpiry(w io.Writer, accessToken string) {
	exp, err := token.DecodeExpiry(accessToken)
	if err != nil {
		fmt.Fprintln(w, "  Expires:     unknown")
		return
	}
	fmt.Fprintf(w, "  Expires:     %s (in %s)\n", exp.Local().Format(time.RFC1123), time.Until(exp).Round(time.Second))
}
