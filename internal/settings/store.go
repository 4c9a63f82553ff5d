package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// settingsFile is the fixed slot all settings live under. The whole record is
// written wholesale on every save; last write wins.
const settingsFile = "insurance-voice-agent-settings.json"

const appDirName = "insurance-voice-agent"

// TwilioSettings holds the dashboard's telephony account details.
//
// The auth token stays in this local slot for record keeping and the
// configured/unconfigured gate only. The client never sends it over the
// wire; the relay holds its own credentials.
type TwilioSettings struct {
	AccountSID  string `json:"accountSid"`
	AuthToken   string `json:"authToken"`
	PhoneNumber string `json:"phoneNumber"`
	VoiceURL    string `json:"voiceUrl"`
}

// AppSettings is the serialized record shape.
type AppSettings struct {
	Twilio TwilioSettings `json:"twilio"`
}

// Store reads and writes the settings slot.
type Store struct {
	path string
}

// NewStore places the slot under the user's config directory.
func NewStore() (*Store, error) {
	path, err := xdg.ConfigFile(filepath.Join(appDirName, settingsFile))
	if err != nil {
		return nil, fmt.Errorf("settings: resolve config path: %w", err)
	}
	return &Store{path: path}, nil
}

// NewStoreAt uses an explicit file path. Intended for tests and for
// deployments that mount config elsewhere.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load returns the stored settings merged onto defaults.
// A missing file is not an error; it means nothing has been configured yet.
func (s *Store) Load() (AppSettings, error) {
	out := AppSettings{}

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("settings: read %s: %w", s.path, err)
	}

	if err := json.Unmarshal(b, &out); err != nil {
		return AppSettings{}, fmt.Errorf("settings: parse %s: %w", s.path, err)
	}
	return out, nil
}

// Save overwrites the whole record.
func (s *Store) Save(settings AppSettings) error {
	b, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("settings: create config dir: %w", err)
	}
	// 0600: the slot holds an auth token.
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("settings: write %s: %w", s.path, err)
	}
	return nil
}

// SaveTwilio replaces only the telephony section, keeping the rest intact.
func (s *Store) SaveTwilio(t TwilioSettings) error {
	current, err := s.Load()
	if err != nil {
		return err
	}
	current.Twilio = t
	return s.Save(current)
}

// Twilio returns the telephony section.
func (s *Store) Twilio() (TwilioSettings, error) {
	all, err := s.Load()
	if err != nil {
		return TwilioSettings{}, err
	}
	return all.Twilio, nil
}

// IsConfigured reports whether calls can be initiated: account SID, auth
// token and caller number must all be present. VoiceURL is optional.
func (s *Store) IsConfigured() bool {
	t, err := s.Twilio()
	if err != nil {
		return false
	}
	return t.AccountSID != "" && t.AuthToken != "" && t.PhoneNumber != ""
}
