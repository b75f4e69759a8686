package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sidingops/rakeserial/internal/actor"
	"github.com/sidingops/rakeserial/internal/database"
	"github.com/sidingops/rakeserial/internal/middleware"
	"github.com/sidingops/rakeserial/internal/services"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *App) error {
				if err := database.AutoMigrate(app.DB.WithContext(cmd.Context()), app.Logger); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓"), "schema up to date")
				return nil
			})
		},
	}
}

// MintCmd returns the mint command
func MintCmd() *cobra.Command {
	var (
		wagons      int
		siding      string
		commodity   string
		destination string
		user        string
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Create a loading session with a new rake serial",
		Long: `Create a loading session with a new rake serial, a draft parent header and
one wagon row per tower position.

Examples:
  rakeserial mint --siding "Siding A" --wagons 42
  rakeserial mint --siding North --wagons 58 --commodity Rice --destination Vizag`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := services.CreateSessionRequest{
				WagonCount:  wagons,
				Siding:      siding,
				Commodity:   commodity,
				Destination: destination,
			}
			who := actor.Actor{Username: user, Role: actor.RoleOperator}
			return withApp(func(app *App) error {
				view, err := app.Sessions.Create(cmd.Context(), req, who)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s %s\n", color.New(color.Bold).Sprint("Serial:"), view.Session.Serial)
				fmt.Fprintf(out, "%s %s\n", color.New(color.Bold).Sprint("Token: "), view.Session.Token)
				fmt.Fprintf(out, "%d wagons at %s\n", view.Session.WagonCount, view.Session.Siding)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&wagons, "wagons", 0, "number of wagons in the rake")
	cmd.Flags().StringVar(&siding, "siding", "", "loading siding")
	cmd.Flags().StringVar(&commodity, "commodity", "", "commodity of the parent header")
	cmd.Flags().StringVar(&destination, "destination", "", "destination of the parent header")
	cmd.Flags().StringVar(&user, "user", "cli", "username recorded in the activity log")
	_ = cmd.MarkFlagRequired("wagons")
	_ = cmd.MarkFlagRequired("siding")
	return cmd
}

// RecoverCmd returns the recover command
func RecoverCmd() *cobra.Command {
	var graceSeconds int
	cmd := &cobra.Command{
		Use:   "recover [serial]",
		Short: "Complete interrupted splits and roll back mixed headers",
		Long: `Without an argument, sweep every serial left between parent and per-indent
form. With a serial, resolve only that one.

Examples:
  rakeserial recover
  rakeserial recover 2025-26/02/001`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *App) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					grace := app.Config.RecoveryGrace()
					if cmd.Flags().Changed("grace") {
						grace = secondsDuration(graceSeconds)
					}
					n, err := app.Recovery.Sweep(cmd.Context(), grace)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%d serials recovered\n", n)
					return nil
				}

				raw := decodeArg(args[0])
				result, err := app.Recovery.Resolve(cmd.Context(), raw)
				if err != nil {
					return err
				}
				if result == nil {
					fmt.Fprintf(out, "%s is consistent\n", raw)
					return nil
				}
				app.Logger.Info("serial recovered", zap.String("serial", raw))
				fmt.Fprintf(out, "%s recovered\n", raw)
				printReassigned(cmd, result.Reassigned)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&graceSeconds, "grace", 0, "only resume split jobs older than this many seconds")
	return cmd
}

// ConfigCmd returns the config command
func ConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// TokenCmd returns the token command
func TokenCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "token <username>",
		Short: "Issue a bearer token for a siding user",
		Long: `Issue a signed bearer token naming the user and role. Requires JWT_SECRET.

Examples:
  rakeserial token asha --role REVIEWER`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			role = strings.ToUpper(role)
			switch role {
			case actor.RoleOperator, actor.RoleReviewer, actor.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			m := middleware.NewActorMiddleware(middleware.ActorConfig{
				JWTSecret:      cfg.JWTSecret,
				JWTExpiryHours: cfg.JWTExpiryHours,
			}, log)
			token, err := m.GenerateToken(args[0], role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", actor.RoleOperator, "OPERATOR, REVIEWER or ADMIN")
	return cmd
}
