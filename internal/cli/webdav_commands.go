package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/CrispStrobe/filen-cli/internal/config"
	"github.com/CrispStrobe/filen-cli/internal/daemon"
	"github.com/CrispStrobe/filen-cli/internal/logging"
	"github.com/CrispStrobe/filen-cli/internal/webdav"
)

// startupProbeWindow is how long the parent waits for a spawned server
// to answer before giving up.
const startupProbeWindow = 5 * time.Second

// serveWebDAV runs the server until the context is cancelled or the
// listener fails.
func serveWebDAV(cfg *config.WebDAVConfig, log *logging.Logger) error {
	d, err := openDrive()
	if err != nil {
		return err
	}
	srv := webdav.NewServer(cfg, d, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-GetContext().Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// runDaemonChild is the detached child's whole life: PID file, file
// logging, serve until signalled.
func runDaemonChild(cfg *config.WebDAVConfig) error {
	if err := daemon.WritePIDFile(); err != nil {
		return err
	}
	defer daemon.RemovePIDFile()

	dir, err := config.Dir()
	if err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(dir, "webdav.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer logFile.Close()

	return serveWebDAV(cfg, logging.NewFileLogger(logFile))
}

// newWebDAVStartCmd creates the 'webdav-start' command.
func newWebDAVStartCmd() *cobra.Command {
	var foreground bool
	var port int

	cmd := &cobra.Command{
		Use:   "webdav-start",
		Short: "Start the WebDAV server",
		Long: `Serve the remote tree over WebDAV so any file manager can mount it.
By default the server detaches into the background and its PID is
recorded under ~/.filen-cli; use --foreground to keep it attached.

Configuration (host, port, protocol, credentials) comes from
'filen webdav-config'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWebDAVConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Port = port
			}

			if daemon.IsDaemonChild() {
				return runDaemonChild(cfg)
			}
			if foreground {
				fmt.Printf("Serving WebDAV at %s (user %s)\n", cfg.URL(), cfg.Username)
				return serveWebDAV(cfg, GetLogger())
			}

			if pid := daemon.IsDaemonRunning(); pid != 0 {
				return fmt.Errorf("webdav server already running (pid %d)", pid)
			}
			spawnArgs := []string{"webdav-start"}
			if port != 0 {
				spawnArgs = append(spawnArgs, "--port", fmt.Sprint(port))
			}
			pid, err := daemon.Spawn(spawnArgs)
			if err != nil {
				return err
			}

			deadline := time.Now().Add(startupProbeWindow)
			for time.Now().Before(deadline) {
				if webdav.Probe(cfg.URL(), cfg.Username, cfg.Password) == nil {
					fmt.Printf("WebDAV server running at %s (pid %d, user %s)\n", cfg.URL(), pid, cfg.Username)
					return nil
				}
				time.Sleep(200 * time.Millisecond)
			}
			return fmt.Errorf("server (pid %d) did not answer within %s; see ~/.filen-cli/webdav.log", pid, startupProbeWindow)
		},
	}

	cmd.Flags().BoolVar(&foreground, "foreground", false, "Stay attached to the terminal")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override the configured port")
	return cmd
}

// newWebDAVStopCmd creates the 'webdav-stop' command.
func newWebDAVStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "webdav-stop",
		Short: "Stop the background WebDAV server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWebDAVConfig()
			if err != nil {
				return err
			}
			pid := daemon.IsDaemonRunning()
			if err := daemon.Stop(cfg.Port); err != nil {
				return err
			}
			if pid == 0 {
				fmt.Println("No server was running; cleaned up the port anyway")
			} else {
				fmt.Printf("Stopped WebDAV server (pid %d)\n", pid)
			}
			return nil
		},
	}
}

// newWebDAVStatusCmd creates the 'webdav-status' command.
func newWebDAVStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "webdav-status",
		Short: "Show whether the WebDAV server is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWebDAVConfig()
			if err != nil {
				return err
			}
			pid := daemon.IsDaemonRunning()
			if pid == 0 {
				fmt.Println("Not running")
				return nil
			}
			fmt.Printf("Running (pid %d) at %s\n", pid, cfg.URL())
			if err := webdav.Probe(cfg.URL(), cfg.Username, cfg.Password); err != nil {
				fmt.Printf("Warning: the process is alive but not answering: %v\n", err)
			}
			return nil
		},
	}
}

// newWebDAVTestCmd creates the 'webdav-test' command.
func newWebDAVTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "webdav-test",
		Short: "Probe the WebDAV server with an authenticated PROPFIND",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWebDAVConfig()
			if err != nil {
				return err
			}
			if err := webdav.Probe(cfg.URL(), cfg.Username, cfg.Password); err != nil {
				return err
			}
			fmt.Printf("%s answers PROPFIND\n", cfg.URL())
			return nil
		},
	}
}

// newWebDAVMountCmd creates the 'webdav-mount' command.
func newWebDAVMountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "webdav-mount",
		Short: "Print OS-specific mount instructions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWebDAVConfig()
			if err != nil {
				return err
			}
			printMountInstructions(cfg)
			return nil
		},
	}
}

// newMountCmd creates the 'mount' command: start the server in the
// background, then show how to attach it.
func newMountCmd() *cobra.Command {
	start := newWebDAVStartCmd()
	return &cobra.Command{
		Use:   "mount",
		Short: "Start the WebDAV server and print mount instructions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWebDAVConfig()
			if err != nil {
				return err
			}
			if daemon.IsDaemonRunning() == 0 {
				if err := start.RunE(cmd, nil); err != nil {
					return err
				}
			}
			printMountInstructions(cfg)
			return nil
		},
	}
}

func printMountInstructions(cfg *config.WebDAVConfig) {
	url := cfg.URL()
	fmt.Printf("Server:   %s\nUsername: %s\n\n", url, cfg.Username)
	switch runtime.GOOS {
	case "darwin":
		fmt.Println("macOS: Finder > Go > Connect to Server, enter the URL above.")
		fmt.Printf("Or: mount_webdav -i %s /Volumes/filen\n", url)
	case "windows":
		fmt.Printf("Windows: net use Z: %s /user:%s\n", url, cfg.Username)
		fmt.Println("Or map a network drive in Explorer with the URL above.")
	default:
		fmt.Printf("Linux (davfs2): sudo mount -t davfs %s /mnt/filen\n", url)
		fmt.Printf("GNOME/KDE: open dav://%s:%d in the file manager.\n", cfg.Host, cfg.Port)
	}
}

// newWebDAVConfigCmd creates the 'webdav-config' command.
func newWebDAVConfigCmd() *cobra.Command {
	var (
		host     string
		port     int
		protocol string
		username string
		password string
	)

	cmd := &cobra.Command{
		Use:   "webdav-config",
		Short: "Show or change the WebDAV server configuration",
		Long: `Without flags, print the current configuration. With flags, update
the given fields and persist them to ~/.filen-cli/webdav_config.json.
Protocol https serves a self-signed certificate generated under
~/.filen-cli/webdav-ssl.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWebDAVConfig()
			if err != nil {
				return err
			}

			changed := false
			if host != "" {
				cfg.Host, changed = host, true
			}
			if port != 0 {
				cfg.Port, changed = port, true
			}
			if protocol != "" {
				if protocol != "http" && protocol != "https" {
					return fmt.Errorf("protocol must be http or https, got %q", protocol)
				}
				cfg.Protocol, changed = protocol, true
			}
			if username != "" {
				cfg.Username, changed = username, true
			}
			if password != "" {
				cfg.Password, changed = password, true
			}

			if changed {
				if err := config.SaveWebDAVConfig(cfg); err != nil {
					return err
				}
				fmt.Println("Saved. Restart the server for the changes to take effect.")
			}
			fmt.Printf("URL:      %s\nHost:     %s\nPort:     %d\nProtocol: %s\nUsername: %s\n",
				cfg.URL(), cfg.Host, cfg.Port, cfg.Protocol, cfg.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Bind address")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port")
	cmd.Flags().StringVar(&protocol, "protocol", "", "http or https")
	cmd.Flags().StringVar(&username, "username", "", "Basic auth user")
	cmd.Flags().StringVar(&password, "password", "", "Basic auth password")
	return cmd
}
