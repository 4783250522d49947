package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-identity/internal/resolver"
)

var faceCmd = &cobra.Command{
	Use:   "face",
	Short: "Confirm or reject stored face decisions",
}

var faceConfirmCmd = &cobra.Command{
	Use:   "confirm <face-id>",
	Short: "Confirm who a stored face is and learn its embedding",
	Long: `Confirm who a stored face is. The face embedding is added to the
person's embedding bank; a name nobody has yet creates a new person.

Examples:
  face-identity face confirm 42 --name "Jana Nováková"
  face-identity face confirm 42 --person-id 5b0c...`,
	Args: cobra.ExactArgs(1),
	RunE: runFaceConfirm,
}

var faceRejectCmd = &cobra.Command{
	Use:   "reject <face-id>",
	Short: "Remove the identity link of a stored face",
	Args:  cobra.ExactArgs(1),
	RunE:  runFaceReject,
}

func init() {
	rootCmd.AddCommand(faceCmd)
	faceCmd.AddCommand(faceConfirmCmd, faceRejectCmd)

	faceConfirmCmd.Flags().String("name", "", "Name of the person")
	faceConfirmCmd.Flags().String("person-id", "", "ID of an existing person")
}

func parseFaceID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid face id %q", s)
	}
	return id, nil
}

func runFaceConfirm(cmd *cobra.Command, args []string) error {
	faceID, err := parseFaceID(args[0])
	if err != nil {
		return err
	}
	req := resolver.ConfirmRequest{
		Name:     mustGetString(cmd, "name"),
		PersonID: mustGetString(cmd, "person-id"),
	}
	if req.Name == "" && req.PersonID == "" {
		return errors.New("either --name or --person-id is required")
	}

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

	res, err := svc.ConfirmFace(ctx, faceID, req)
	if err != nil {
		return err
	}

	switch {
	case res.Created:
		fmt.Printf("Face %d confirmed as new person %s (%s)\n", res.FaceID, res.Name, res.PersonID)
	case res.Learned:
		fmt.Printf("Face %d confirmed as %s, bank now has %d embeddings\n", res.FaceID, res.Name, res.BankSize)
	default:
		fmt.Printf("Face %d confirmed as %s, embedding already known\n", res.FaceID, res.Name)
	}
	return nil
}

func runFaceReject(cmd *cobra.Command, args []string) error {
	faceID, err := parseFaceID(args[0])
	if err != nil {
		return err
	}

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

	if err := svc.RejectFace(ctx, faceID); err != nil {
		return err
	}
	fmt.Printf("Face %d unlinked\n", faceID)
	return nil
}
