// Command dashboard is the terminal stand-in for the web dashboard: it
// manages telephony settings and drives verification calls end to end
// through the relay, printing each lifecycle transition.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"insurance-voice-agent/internal/callclient"
	"insurance-voice-agent/internal/calltrack"
	"insurance-voice-agent/internal/settings"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "configure":
		err = runConfigure(os.Args[2:])
	case "show":
		err = runShow(os.Args[2:])
	case "call":
		err = runCall(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: dashboard <command>

commands:
  configure   store telephony account settings
  show        print the stored settings (auth token redacted)
  call        place a verification call and track it to completion`)
}

func openStore(path string) (*settings.Store, error) {
	if path != "" {
		return settings.NewStoreAt(path), nil
	}
	return settings.NewStore()
}

func runConfigure(args []string) error {
	fs := flag.NewFlagSet("configure", flag.ExitOnError)
	accountSID := fs.String("account-sid", "", "Twilio account SID")
	authToken := fs.String("auth-token", "", "Twilio auth token")
	phoneNumber := fs.String("phone-number", "", "caller id number (E.164)")
	voiceURL := fs.String("voice-url", "", "optional voice webhook URL")
	path := fs.String("settings", "", "settings file path (default: user config dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(*path)
	if err != nil {
		return err
	}
	if err := store.SaveTwilio(settings.TwilioSettings{
		AccountSID:  *accountSID,
		AuthToken:   *authToken,
		PhoneNumber: *phoneNumber,
		VoiceURL:    *voiceURL,
	}); err != nil {
		return err
	}

	fmt.Println("settings saved to", store.Path())
	if !store.IsConfigured() {
		fmt.Println("warning: settings are incomplete; calls cannot be placed yet")
	}
	return nil
}

func runShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	path := fs.String("settings", "", "settings file path (default: user config dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(*path)
	if err != nil {
		return err
	}
	t, err := store.Twilio()
	if err != nil {
		return err
	}

	token := "(unset)"
	if t.AuthToken != "" {
		token = "[redacted]"
	}
	fmt.Printf("account sid:  %s\nauth token:   %s\nphone number: %s\nvoice url:    %s\nconfigured:   %v\n",
		t.AccountSID, token, t.PhoneNumber, t.VoiceURL, store.IsConfigured())
	return nil
}

func runCall(args []string) error {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	relayURL := fs.String("relay", envOr("RELAY_URL", "http://localhost:8080"), "relay base URL")
	to := fs.String("to", "", "insurance provider phone number")
	patient := fs.String("patient", "", "patient full name")
	dob := fs.String("dob", "", "patient date of birth (YYYY-MM-DD)")
	memberID := fs.String("member-id", "", "insurance member id")
	insurer := fs.String("insurance", "", "insurance provider name")
	npi := fs.String("npi", "", "provider NPI number")
	taxID := fs.String("tax-id", "", "clinic tax id")
	clinicName := fs.String("clinic-name", "", "clinic name")
	clinicAddr := fs.String("clinic-address", "", "clinic address")
	path := fs.String("settings", "", "settings file path (default: user config dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(*path)
	if err != nil {
		return err
	}

	client := callclient.NewClient(*relayURL, store)
	tracker := calltrack.NewTracker(client)

	done := make(chan calltrack.Snapshot, 1)
	tracker.Observer = func(s calltrack.Snapshot) {
		fmt.Printf("[%s] %s\n", s.State, s.Message)
		if s.State.Terminal() {
			select {
			case done <- s:
			default:
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = tracker.Start(ctx, callclient.CallRequest{
		PhoneNumber:       *to,
		PatientName:       *patient,
		PatientDOB:        *dob,
		MemberID:          *memberID,
		InsuranceProvider: *insurer,
		NPINumber:         *npi,
		TaxID:             *taxID,
		ClinicName:        *clinicName,
		ClinicAddress:     *clinicAddr,
	})
	if err != nil {
		return err
	}

	select {
	case s := <-done:
		if s.State == calltrack.StateFailed {
			if s.Err != nil {
				return s.Err
			}
			return fmt.Errorf("call failed: %s", s.Message)
		}
		return nil
	case <-ctx.Done():
		fmt.Println("cancelling call...")
		// Cancel with a fresh context; the signal context is already cut.
		return tracker.Cancel(context.Background())
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
