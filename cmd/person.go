package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var personCmd = &cobra.Command{
	Use:   "person",
	Short: "Manage known people",
}

var personListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the people of an owner",
	Args:  cobra.NoArgs,
	RunE:  runPersonList,
}

var personCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a person with an empty embedding bank",
	Long: `Create a person with an empty embedding bank. The bank is filled by
confirming faces (see "face confirm").`,
	Args: cobra.ExactArgs(1),
	RunE: runPersonCreate,
}

var personDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a person; faces linked to it lose the link",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonDelete,
}

func init() {
	rootCmd.AddCommand(personCmd)
	personCmd.AddCommand(personListCmd, personCreateCmd, personDeleteCmd)

	personCmd.PersistentFlags().String("owner", "", "Owner scope of the identities (default \"default\")")
}

func runPersonList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	svc, cleanup, err := openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	persons, err := svc.ListPersons(ctx, mustGetString(cmd, "owner"))
	if err != nil {
		return err
	}
	if len(persons) == 0 {
		fmt.Println("No people found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tBANK\tDIM\tUPDATED")
	for _, p := range persons {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", p.ID, p.Name, p.BankSize, p.Dim, p.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runPersonCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	svc, cleanup, err := openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	person, err := svc.CreatePerson(ctx, mustGetString(cmd, "owner"), args[0], nil)
	if err != nil {
		return err
	}
	fmt.Printf("Created %s (%s)\n", person.Name, person.ID)
	return nil
}

func runPersonDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	svc, cleanup, err := openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.DeletePerson(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
