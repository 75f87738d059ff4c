package attach

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/sandboxsync/cmd/util"
	"github.com/sidkik/sandboxsync/pkg/broadcast"
	"github.com/sidkik/sandboxsync/pkg/errors"
	"github.com/sidkik/sandboxsync/pkg/sync/client"
	"github.com/sidkik/sandboxsync/pkg/sync/server"
)

// New creates a new `attach` command.
func New() *cobra.Command {
	var maxMessageSize int64
	cmd := &cobra.Command{
		Use:   "attach <ws-url>",
		Short: "Attach to a sync server as a context, and log what it sends.",
		Long: "Attach to a sync server as a context. The context asks for the\n" +
			"sandbox right away, so it counts towards the server's quorum.\n" +
			"Every message received afterwards is logged.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := run(ctx, args[0], maxMessageSize); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().Int64Var(&maxMessageSize, "max-message-size", server.DefaultReadLimit,
		"The largest message in bytes accepted from the server. -1 disables the limit.")
	return cmd
}

func run(ctx context.Context, addr string, maxMessageSize int64) error {
	c, err := client.Dial(ctx, addr, maxMessageSize)
	if err != nil {
		return errors.WithContext(err, "attach")
	}
	defer c.Close()

	if err := c.Publish(ctx, broadcast.SyncSandbox{}); err != nil {
		return errors.WithContext(err, "request sandbox")
	}
	log.WithField("address", addr).Info("Attached. Waiting for the sandbox..")

	for {
		select {
		case msg, ok := <-c.Messages():
			if !ok {
				return errors.New("connection closed")
			}
			logMessage(msg)
		case <-ctx.Done():
			return nil
		}
	}
}

func logMessage(msg broadcast.Message) {
	entry := log.WithField("kind", msg.Kind())
	switch msg := msg.(type) {
	case broadcast.SandboxFS:
		entry.WithField("entries", len(msg.Snapshot)).Info("Received sandbox")
	case broadcast.TypingsSync:
		entry.WithField("files", len(msg.Files)).Info("Received typings")
	case broadcast.WriteFile:
		entry.WithField("path", msg.Entry.Path).Info("File written")
	case broadcast.Rename:
		entry.WithField("from", msg.FromPath).WithField("to", msg.ToPath).Info("Entry renamed")
	case broadcast.Unlink:
		entry.WithField("path", msg.File.Path).Info("File removed")
	case broadcast.Rmdir:
		entry.WithField("path", msg.Directory.Path).Info("Directory removed")
	case broadcast.Mkdir:
		entry.WithField("path", msg.Directory.Path).Info("Directory created")
	default:
		entry.Debug("Received request")
	}
}
