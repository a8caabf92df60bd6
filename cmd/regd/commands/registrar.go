package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qenex/regd/internal/cli/output"
	"github.com/qenex/regd/internal/cli/prompt"
	"github.com/qenex/regd/pkg/registry/models"
	"github.com/qenex/regd/pkg/registry/store"
)

var (
	registrarName  string
	registrarEmail string
)

var registrarCmd = &cobra.Command{
	Use:   "registrar",
	Short: "Manage registrar accounts",
	Long: `Manage the registrar accounts that may log in over EPP.

Examples:
  regd registrar add RG1 --name "Registrar One" --email ops@rg1.example
  regd registrar passwd RG1
  regd registrar list`,
}

var registrarAddCmd = &cobra.Command{
	Use:   "add <clID>",
	Short: "Add a registrar account (prompts for password)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegistrarAdd,
}

var registrarPasswdCmd = &cobra.Command{
	Use:   "passwd <clID>",
	Short: "Change a registrar password",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegistrarPasswd,
}

var registrarListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registrar accounts",
	Args:  cobra.NoArgs,
	RunE:  runRegistrarList,
}

func init() {
	registrarAddCmd.Flags().StringVar(&registrarName, "name", "", "Registrar display name")
	registrarAddCmd.Flags().StringVar(&registrarEmail, "email", "", "Registrar contact email")

	registrarCmd.AddCommand(registrarAddCmd)
	registrarCmd.AddCommand(registrarPasswdCmd)
	registrarCmd.AddCommand(registrarListCmd)
}

func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := initLogger(cfg); err != nil {
		return nil, err
	}
	return store.Open(&cfg.Database)
}

func validatePassword(input string) error {
	if len(input) < 8 {
		return fmt.Errorf("must be at least 8 characters")
	}
	return nil
}

func runRegistrarAdd(cmd *cobra.Command, args []string) error {
	clID := args[0]

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	password, err := prompt.PasswordConfirmed("Password", validatePassword)
	if err != nil {
		return err
	}

	err = st.CreateRegistrar(context.Background(), clID, registrarName, registrarEmail, password)
	if errors.Is(err, models.ErrRegistrarExists) {
		return fmt.Errorf("registrar %q already exists", clID)
	}
	if err != nil {
		return fmt.Errorf("failed to create registrar: %w", err)
	}

	fmt.Printf("Registrar %q created\n", clID)
	return nil
}

func runRegistrarPasswd(cmd *cobra.Command, args []string) error {
	clID := args[0]

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	password, err := prompt.PasswordConfirmed("Password", validatePassword)
	if err != nil {
		return err
	}

	err = st.SetRegistrarPassword(context.Background(), clID, password)
	if errors.Is(err, models.ErrRegistrarNotFound) {
		return fmt.Errorf("registrar %q does not exist", clID)
	}
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}

	fmt.Printf("Password updated for registrar %q\n", clID)
	return nil
}

func runRegistrarList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	registrars, err := st.ListRegistrars(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list registrars: %w", err)
	}
	if len(registrars) == 0 {
		fmt.Println("No registrars configured")
		return nil
	}

	rows := make([][]string, 0, len(registrars))
	for _, r := range registrars {
		rows = append(rows, []string{r.ID, r.Name, r.Email, r.CreatedAt.Format("2006-01-02")})
	}
	output.PrintTable(os.Stdout, []string{"clID", "Name", "Email", "Created"}, rows)
	return nil
}
