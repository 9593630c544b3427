package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/mirrorpair/internal/config"
	"github.com/nextlevelbuilder/mirrorpair/internal/pairing"
	"github.com/nextlevelbuilder/mirrorpair/internal/qr"
	"github.com/nextlevelbuilder/mirrorpair/internal/remote"
	"github.com/nextlevelbuilder/mirrorpair/internal/store"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Width(12)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

func pairingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairing",
		Short: "Start, join and maintain a device pairing",
	}

	cmd.AddCommand(pairingInitiateCmd())
	cmd.AddCommand(pairingCompleteCmd())
	cmd.AddCommand(pairingRefreshCmd())
	cmd.AddCommand(pairingTTLCmd())
	cmd.AddCommand(pairingStatusCmd())
	cmd.AddCommand(pairingUnpairCmd())
	cmd.AddCommand(pairingWatchCmd())

	return cmd
}

func pairingInitiateCmd() *cobra.Command {
	var (
		showQR bool
		pngOut string
	)
	cmd := &cobra.Command{
		Use:   "initiate",
		Short: "Start a new pairing and print its token",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			a := mustApp(ctx, true)
			defer a.Close()

			if err := a.ctrl.Initiate(ctx); err != nil {
				a.exit(err)
			}
			snap := a.ctrl.Snapshot()
			printSession(os.Stdout, a.cfg.Service.BaseURL, snap)
			if r := qrOutputs(os.Stdout, showQR && !jsonOutput, pngOut); len(r) > 0 {
				if err := r.Render(pairing.LandingURL(a.cfg.Service.BaseURL, snap.Token())); err != nil {
					a.exit(err)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&showQR, "qr", false, "render the pairing QR code in the terminal")
	cmd.Flags().StringVar(&pngOut, "qr-png", "", "also write the pairing QR code as a PNG to this path")
	return cmd
}

func pairingCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete [token]",
		Short: "Join a pairing (interactive if no token given)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var token string
			if len(args) == 1 {
				token = strings.TrimSpace(args[0])
			} else if isInteractive() {
				t, err := promptString("Pairing token", "Paste the token shown on the other device. Leave empty to reuse the saved one.", "")
				if err != nil {
					fmt.Println("Cancelled.")
					return
				}
				token = strings.TrimSpace(t)
			}

			ctx := cmd.Context()
			a := mustApp(ctx, true)
			defer a.Close()

			if err := a.ctrl.Complete(ctx, token); err != nil {
				if errors.Is(err, pairing.ErrNoToken) {
					a.exit(errors.New("no token given and none saved; pass the token shown on the other device"))
				}
				a.exit(err)
			}
			printSession(os.Stdout, a.cfg.Service.BaseURL, a.ctrl.Snapshot())
		},
	}
}

func pairingRefreshCmd() *cobra.Command {
	var showQR bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Renew the saved pairing and print the new token",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			a := mustApp(ctx, true)
			defer a.Close()

			if err := a.ctrl.Resume(ctx); err != nil {
				a.exit(resumeHint(err))
			}

			if showQR && !jsonOutput {
				r := pairing.NewRefresher(a.ctrl, a.cfg.Service.BaseURL, newQRPrinter(os.Stdout), a.cfg.PollInterval())
				if err := r.Cycle(ctx); err != nil {
					a.exit(err)
				}
				if !a.ctrl.IsPaired() {
					a.exit(errors.New("refresh failed, the pairing was discarded"))
				}
				fmt.Printf("%s %ds\n", labelStyle.Render("Remaining:"), r.Remaining())
				return
			}

			if err := a.ctrl.Refresh(ctx); err != nil {
				a.exit(err)
			}
			printSession(os.Stdout, a.cfg.Service.BaseURL, a.ctrl.Snapshot())
		},
	}
	cmd.Flags().BoolVar(&showQR, "qr", false, "render the QR code for the new token, then report the remaining TTL")
	return cmd
}

func pairingTTLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ttl",
		Short: "Print the seconds left on the saved pairing (-1 if unknown)",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			a := mustApp(ctx, false)
			defer a.Close()

			ttl := a.ctrl.RemainingTTL(ctx)
			if jsonOutput {
				printJSON(os.Stdout, map[string]int{"ttl": ttl})
				return
			}
			fmt.Println(ttl)
		},
	}
}

// pairingStatus is the --json shape of "pairing status".
type pairingStatus struct {
	DeviceID   string `json:"deviceId"`
	Service    string `json:"service"`
	Storage    string `json:"storage"`
	SavedToken string `json:"savedToken,omitempty"`
	TTL        int    `json:"ttl"`
}

func pairingStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show device identity and the saved pairing",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			a := mustApp(ctx, false)
			defer a.Close()

			st := pairingStatus{
				DeviceID: a.ctrl.DeviceID(),
				Service:  a.cfg.Service.BaseURL,
				Storage:  a.cfg.Storage.Driver,
				TTL:      a.ctrl.RemainingTTL(ctx),
			}
			if tok, err := a.kv.Get(ctx, store.KeyPairToken); err == nil {
				st.SavedToken = maskSecret(tok)
			}

			if jsonOutput {
				printJSON(os.Stdout, st)
				return
			}
			printStatus(os.Stdout, st)
		},
	}
}

func pairingUnpairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpair",
		Short: "Leave the pairing on the service and forget the saved token",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			a := mustApp(ctx, false)
			defer a.Close()

			err := a.client.ToggleDevice(ctx, a.ctrl.DeviceID())
			if status, ok := remote.IsRejected(err); ok && status == http.StatusNotFound {
				fmt.Println("Device was not part of any pairing on the service.")
			} else if err != nil {
				a.exit(err)
			}

			if err := a.kv.Delete(ctx, store.KeyPairToken); err != nil && !errors.Is(err, store.ErrNotFound) {
				a.exit(fmt.Errorf("forget token: %w", err))
			}
			a.ctrl.SetAvailable(false)
			fmt.Println(okStyle.Render("Unpaired."))
		},
	}
}

func pairingWatchCmd() *cobra.Command {
	var (
		forceNew bool
		pngOut   string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the pairing QR code and keep the pairing alive until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			if err := runWatch(ctx, forceNew, pngOut); err != nil {
				exitErr(err)
			}
		},
	}
	cmd.Flags().BoolVar(&forceNew, "new", false, "always start a new pairing instead of resuming the saved one")
	cmd.Flags().StringVar(&pngOut, "qr-png", "", "keep a PNG of the current QR code at this path")
	return cmd
}

func runWatch(ctx context.Context, forceNew bool, pngOut string) error {
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	refresher := pairing.NewRefresher(a.ctrl, a.cfg.Service.BaseURL, qrOutputs(os.Stdout, true, pngOut), a.cfg.PollInterval())
	refresher.OnTTL = func(ttl int) {
		if ttl >= 0 {
			fmt.Fprintf(os.Stderr, "\r%s", dimStyle.Render(fmt.Sprintf("expires in %4ds", ttl)))
		}
	}

	if w, err := config.NewWatcher(resolveConfigPath()); err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	} else {
		w.OnChange(func(cfg *config.Config) {
			applyLogLevel(cfg.Log.Level)
			refresher.SetInterval(cfg.PollInterval())
		})
		if err := w.Start(); err != nil {
			slog.Warn("config watcher unavailable", "error", err)
			w.Stop()
		} else {
			defer w.Stop()
		}
	}

	a.ctrl.OnChange(func(s pairing.Snapshot) {
		switch {
		case s.Session == nil && s.Event != "":
			fmt.Fprintf(os.Stderr, "\n%s %s\n", warnStyle.Render(s.Event), "no active pairing")
		case s.Event != "":
			fmt.Fprintf(os.Stderr, "\n%s ttl=%ds\n", okStyle.Render(s.Event), s.Session.TTL)
		}
	})

	if err := startOrResume(ctx, a.ctrl, forceNew || a.cfg.Pairing.AutoInitiate); err != nil {
		return err
	}

	if err := refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

// startOrResume resumes the saved pairing, or initiates a new one when there
// is none (or forceNew is set).
func startOrResume(ctx context.Context, ctrl *pairing.Controller, forceNew bool) error {
	if !forceNew {
		err := ctrl.Resume(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pairing.ErrNoToken) && !errors.Is(err, pairing.ErrSessionLost) {
			return err
		}
		slog.Debug("no resumable pairing, starting a new one", "reason", err)
	}
	return ctrl.Initiate(ctx)
}

func resumeHint(err error) error {
	switch {
	case errors.Is(err, pairing.ErrNoToken):
		return errors.New("no saved pairing; run 'mirrorpair pairing initiate' or 'complete' first")
	case errors.Is(err, pairing.ErrSessionLost):
		return fmt.Errorf("saved pairing is no longer known to the service: %w", err)
	default:
		return err
	}
}

// --- Output ---

// qrPrinter renders the landing URL and its QR code to a writer.
type qrPrinter struct {
	w  io.Writer
	qr qr.Terminal
}

func newQRPrinter(w io.Writer) qrPrinter {
	return qrPrinter{w: w, qr: qr.Terminal{W: w}}
}

// qrTargets renders to every target and joins their errors.
type qrTargets []pairing.QRRenderer

func (t qrTargets) Render(url string) error {
	var errs []error
	for _, r := range t {
		if err := r.Render(url); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// qrOutputs picks the terminal printer and, when pngPath is set, a PNG file.
func qrOutputs(w io.Writer, terminal bool, pngPath string) qrTargets {
	var t qrTargets
	if terminal {
		t = append(t, newQRPrinter(w))
	}
	if pngPath != "" {
		t = append(t, qr.File{Path: config.ExpandHome(pngPath)})
	}
	return t
}

func (p qrPrinter) Render(url string) error {
	fmt.Fprintf(p.w, "\n%s %s\n", labelStyle.Render("Scan:"), url)
	return p.qr.Render(url)
}

func printSession(w io.Writer, baseURL string, s pairing.Snapshot) {
	if jsonOutput {
		printJSON(w, s)
		return
	}
	if s.Session == nil {
		fmt.Fprintln(w, warnStyle.Render("No active pairing."))
		return
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("State:"), okStyle.Render(s.State.String()))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Token:"), s.Session.Token)
	fmt.Fprintf(w, "%s %ds\n", labelStyle.Render("TTL:"), s.Session.TTL)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Link:"), pairing.LandingURL(baseURL, s.Session.Token))
}

func printStatus(w io.Writer, st pairingStatus) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Device:"), st.DeviceID)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Service:"), st.Service)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Storage:"), st.Storage)
	if st.SavedToken == "" {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Pairing:"), dimStyle.Render("none saved"))
		return
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Token:"), st.SavedToken)
	if st.TTL < 0 {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("TTL:"), warnStyle.Render("unknown (expired or service unreachable)"))
		return
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("TTL:"), okStyle.Render(fmt.Sprintf("%ds", st.TTL)))
}

func printJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(data))
}

func isInteractive() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
