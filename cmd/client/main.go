package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/Tyrowin/talkrelay/internal/client"
	"github.com/spf13/cobra"
)

func main() {
	var (
		host  string
		port  int
		alias string
	)

	rootCmd := &cobra.Command{
		Use:   "talkrelay-client",
		Short: "Terminal chat client for talkrelay",
		Long: `Reads lines from standard input and sends each one to every other
participant. "/msg <id> <text>" sends privately, "/quit" leaves.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			c := client.New(alias, func(text string) {
				fmt.Fprintln(cmd.OutOrStdout(), text)
			}, client.WithLogger(logger))

			if err := c.Connect(host, port); err != nil {
				return err
			}
			return chat(c, cmd.InOrStdin(), cmd.ErrOrStderr())
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&host, "host", "localhost", "relay host")
	flags.IntVar(&port, "port", 8765, "relay port")
	flags.StringVarP(&alias, "alias", "a", "", "display name")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// chat forwards input lines until EOF, "/quit" or the server going away.
func chat(c *client.Client, in io.Reader, errOut io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-c.Done():
			return c.Err()
		case line, ok := <-lines:
			if !ok || line == "/quit" {
				return c.Disconnect()
			}
			if err := send(c, line); err != nil {
				fmt.Fprintf(errOut, "not sent: %s\n", err)
			}
		}
	}
}

func send(c *client.Client, line string) error {
	if rest, ok := strings.CutPrefix(line, "/msg "); ok {
		idPart, text, _ := strings.Cut(rest, " ")
		id, err := strconv.ParseUint(idPart, 10, 64)
		if err != nil {
			return fmt.Errorf("bad session id %q", idPart)
		}
		return c.SendPrivate(id, text)
	}
	if strings.TrimSpace(line) == "" {
		return nil
	}
	return c.SendBroadcast(line)
}
