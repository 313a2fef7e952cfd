// Package settings persists user preferences and notifies subscribers of
// changes.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/polkagate/poolkit/pkg/kv"
)

// StorageKey is where the settings live in the kv store.
const StorageKey = "settings"

var ErrInvalid = errors.New("settings: invalid value")

const (
	ThemeDark  = "dark"
	ThemeLight = "light"

	CameraOn  = "on"
	CameraOff = "off"

	NotificationExtension = "extension"
	NotificationPopup     = "popup"
	NotificationWindow    = "window"
)

type Settings struct {
	Language     string `json:"i18nLang"`
	Theme        string `json:"theme"`
	Camera       string `json:"camera"`
	Notification string `json:"notification"`
	DefaultChain string `json:"defaultChain,omitempty"`
}

// Defaults are the settings before anything is saved.
func Defaults() Settings {
	return Settings{
		Language:     "default",
		Theme:        ThemeDark,
		Camera:       CameraOff,
		Notification: NotificationPopup,
	}
}

func (s Settings) Validate() error {
	if s.Language == "" {
		return fmt.Errorf("%w: empty language", ErrInvalid)
	}
	if !slices.Contains([]string{ThemeDark, ThemeLight}, s.Theme) {
		return fmt.Errorf("%w: theme %q", ErrInvalid, s.Theme)
	}
	if !slices.Contains([]string{CameraOn, CameraOff}, s.Camera) {
		return fmt.Errorf("%w: camera %q", ErrInvalid, s.Camera)
	}
	if !slices.Contains([]string{NotificationExtension, NotificationPopup, NotificationWindow}, s.Notification) {
		return fmt.Errorf("%w: notification %q", ErrInvalid, s.Notification)
	}
	return nil
}

// Store reads and writes Settings. Subscribers receive the latest value after
// every successful Set; a slow subscriber only ever sees the newest one.
type Store struct {
	kv     kv.Store
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[int]chan Settings
	nextID int
}

func NewStore(store kv.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default().With("component", "settings")
	}
	return &Store{kv: store, logger: logger, subs: make(map[int]chan Settings)}
}

// Get returns the saved settings, or Defaults when none are saved. Missing
// fields of an older saved value are filled from Defaults.
func (s *Store) Get(ctx context.Context) (Settings, error) {
	out := Defaults()
	if _, err := kv.GetJSON(ctx, s.kv, StorageKey, &out); err != nil {
		return Settings{}, err
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, v Settings) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if err := kv.SetJSON(ctx, s.kv, StorageKey, v); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "settings saved", "language", v.Language, "theme", v.Theme)
	s.publish(v)
	return nil
}

// Subscribe returns a channel of settings updates and a cancel func that
// closes it.
func (s *Store) Subscribe() (<-chan Settings, func()) {
	ch := make(chan Settings, 1)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) publish(v Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}
