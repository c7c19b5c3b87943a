package cmd

import "github.com/spf13/cobra"

// Commands are the subcommands of the rca binary.
func Commands() []*cobra.Command {
	return []*cobra.Command{
		&ServerCMD,
		&ChatCMD,
		&RcaCMD,
		&UserCMD,
		&IngestCMD,
		&TeleCMD,
	}
}
