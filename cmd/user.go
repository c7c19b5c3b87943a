package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/odit-bit/rcaccelerator/rca"
	"github.com/odit-bit/rcaccelerator/rca/config"
	"github.com/odit-bit/rcaccelerator/store"
	"github.com/spf13/cobra"
)

func init() {
	UserCMD.PersistentFlags().AddFlagSet(config.ServerFlags())
	userAddCMD.Flags().String("password", "", "password, read from stdin when empty")
	UserCMD.AddCommand(&userAddCMD, &userTokenCMD)
}

var UserCMD = cobra.Command{
	Use:   "user",
	Short: "manage api users",
}

var userAddCMD = cobra.Command{
	Use:   "add <name>",
	Short: "create a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			fmt.Fprint(cmd.ErrOrStderr(), "password: ")
			var err error
			if password, err = readLine(cmd.InOrStdin()); err != nil {
				return err
			}
		}

		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		svc, db, err := rca.OpenAuth(cfg)
		if err != nil {
			return err
		}
		defer store.Close(db)

		if err := svc.CreateUser(cmd.Context(), args[0], password); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %s created\n", args[0])
		return nil
	},
}

var userTokenCMD = cobra.Command{
	Use:   "token <name>",
	Short: "issue a bearer token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		svc, db, err := rca.OpenAuth(cfg)
		if err != nil {
			return err
		}
		defer store.Close(db)

		tok, err := svc.IssueToken(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok.Value)
		return nil
	},
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("empty input")
	}
	return line, nil
}
