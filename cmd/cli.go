package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/odit-bit/rcaccelerator/api"
	"github.com/odit-bit/rcaccelerator/rca/config"
	"github.com/spf13/cobra"
)

func init() {
	for _, c := range []*cobra.Command{&ChatCMD, &RcaCMD, &TeleCMD} {
		c.Flags().AddFlagSet(config.ClientFlags())
		c.Flags().String("user", "", "login with this user instead of a token")
		c.Flags().String("password", "", "password of --user")
	}
	ChatCMD.Flags().String("profile", "", "profile of the conversation")
}

// newClient builds a client from config, logging in when --user is given.
func newClient(cmd *cobra.Command) (*api.Client, *config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	cli := api.NewClient(cfg.Client.Address, cfg.Client.Token).WithTimeout(cfg.Client.Timeout)

	if user, _ := cmd.Flags().GetString("user"); user != "" {
		password, _ := cmd.Flags().GetString("password")
		if _, err := cli.Login(cmd.Context(), user, password); err != nil {
			return nil, nil, fmt.Errorf("login: %w", err)
		}
	}
	return cli, cfg, nil
}

var ChatCMD = cobra.Command{
	Use:   "chat",
	Short: "interactive chat with the rca server",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		cli, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		info, err := cli.Models(ctx)
		if err != nil {
			return err
		}

		s := &chatSession{
			cli:      cli,
			settings: info.Defaults,
			id:       uuid.NewString(),
		}
		if p, _ := cmd.Flags().GetString("profile"); p != "" {
			s.settings.Profile = p
		}
		return s.run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

type streamer interface {
	PromptStream(ctx context.Context, in api.PromptRequest, fn func(delta string) error) ([]string, error)
	ClearSession(ctx context.Context, session string) error
}

type chatSession struct {
	cli      streamer
	settings api.Settings
	id       string
}

func (s *chatSession) run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Split(bufio.ScanLines)

	fmt.Fprintf(out, "profile: %s, /exit to quit\n> ", s.settings.Profile)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
		case input == "/exit":
			return nil
		case input == "/reset":
			if err := s.cli.ClearSession(ctx, s.id); err != nil {
				fmt.Fprintf(out, ">error: %s \n", err)
			}
			s.id = uuid.NewString()
			fmt.Fprintln(out, "conversation reset")
		case strings.HasPrefix(input, "/profile"):
			name := strings.TrimSpace(strings.TrimPrefix(input, "/profile"))
			if name == "" {
				fmt.Fprintf(out, "profile: %s\n", s.settings.Profile)
				break
			}
			s.settings.Profile = name
			fmt.Fprintf(out, "profile set to %s\n", name)
		default:
			if err := s.ask(ctx, input, out); err != nil {
				fmt.Fprintf(out, "\n>error: %s \n", err)
			}
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func (s *chatSession) ask(ctx context.Context, content string, out io.Writer) error {
	req := api.PromptRequest{Settings: s.settings, Content: content, SessionID: s.id}
	urls, err := s.cli.PromptStream(ctx, req, func(delta string) error {
		_, err := fmt.Fprint(out, delta)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	printURLs(out, urls)
	return nil
}

func printURLs(out io.Writer, urls []string) {
	if len(urls) == 0 {
		return
	}
	fmt.Fprintln(out, "\nReferences:")
	for _, u := range urls {
		fmt.Fprintf(out, "- %s\n", u)
	}
}

var RcaCMD = cobra.Command{
	Use:   "rca <tempest report url>",
	Short: "root cause analysis of every failed test of a tempest report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		cli, _, err := newClient(cmd)
		if err != nil {
			return err
		}
		info, err := cli.Models(ctx)
		if err != nil {
			return err
		}

		items, err := cli.RCA(ctx, api.RCARequest{Settings: info.Defaults, TempestReportURL: args[0]})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, item := range items {
			fmt.Fprintf(out, "=== %s\n%s\n", item.TestName, item.Response)
			printURLs(out, item.URLs)
			fmt.Fprintln(out)
		}
		return nil
	},
}
