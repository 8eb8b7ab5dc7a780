package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kangsantri/internal/metrics"
)

// SecretSealer protects credential secrets at rest. Open must accept values
// that were never sealed.
type SecretSealer interface {
	Seal(secret string) (string, error)
	Open(raw string) (string, error)
}

type Options struct {
	KV      KV
	Sealer  SecretSealer
	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	DefaultTheme Theme
	SaveTimeout  time.Duration

	Now   func() time.Time
	NewID func(prefix string) string
}

// App is the application state handle. All mutations are serialised by one
// mutex; each one schedules a full re-save of every slice.
type App struct {
	mu sync.Mutex

	codec       *Codec
	sealer      SecretSealer
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	saveTimeout time.Duration
	now         func() time.Time
	newID       func(prefix string) string

	theme          Theme
	view           View
	activeProvider Provider
	settings       APISettings
	params         ChatParams
	preset         Preset
	convs          conversationList
	projects       []CodeProject
	editingID      string

	rev       uint64
	saveMu    sync.Mutex
	savedRev  uint64
	dirty     chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// storedProviderSettings is the persisted shape of one provider entry.
type storedProviderSettings struct {
	ProviderSettings
	LastUpdated string `json:"lastUpdated"`
}

// Open loads every slice in a fixed order (load, migrate, default-fill) and
// writes the result back once. Backend I/O errors abort Open so that an
// unreachable store is never overwritten with defaults.
func Open(ctx context.Context, opts Options) (*App, error) {
	if opts.KV == nil {
		return nil, errors.New("state: KV is required")
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = func(prefix string) string { return prefix + "-" + uuid.NewString() }
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 5 * time.Second
	}
	if !opts.DefaultTheme.Valid() {
		opts.DefaultTheme = ThemeLight
	}

	a := &App{
		codec:       NewCodec(opts.KV, opts.Logger, opts.Metrics),
		sealer:      opts.Sealer,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		saveTimeout: opts.SaveTimeout,
		now:         opts.Now,
		newID:       opts.NewID,
		view:        ViewChat,
		dirty:       make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	a.convs = conversationList{now: a.now, newID: a.newID}

	if err := a.load(ctx, opts.DefaultTheme); err != nil {
		return nil, err
	}
	if err := a.Flush(ctx); err != nil {
		return nil, fmt.Errorf("initial save: %w", err)
	}

	a.wg.Add(1)
	go a.persistLoop()
	return a, nil
}

func (a *App) load(ctx context.Context, defaultTheme Theme) error {
	c := a.codec

	theme, found, err := LoadRaw(ctx, c, KeyTheme)
	if err != nil {
		return err
	}
	a.theme = defaultTheme
	if found {
		if t := Theme(theme); t.Valid() {
			a.theme = t
		} else {
			c.discard(ctx, KeyTheme, fmt.Errorf("invalid theme %q", theme))
		}
	}

	if err := a.loadSettings(ctx); err != nil {
		return err
	}

	provider, found, err := LoadRaw(ctx, c, KeyActiveProvider)
	if err != nil {
		return err
	}
	a.activeProvider = ProviderGemini
	if found {
		if p := Provider(provider); p.Valid() {
			a.activeProvider = p
		} else {
			c.discard(ctx, KeyActiveProvider, fmt.Errorf("invalid provider %q", provider))
		}
	}

	stored, _, err := LoadJSON(ctx, c, KeyChatParams, ParamsUpdate{})
	if err != nil {
		return err
	}

	preset, found, err := LoadRaw(ctx, c, KeyPreset)
	if err != nil {
		return err
	}
	a.preset = PresetDefault
	if found {
		if _, ok := presetPrompts[Preset(preset)]; ok {
			a.preset = Preset(preset)
		} else {
			c.discard(ctx, KeyPreset, fmt.Errorf("invalid preset %q", preset))
		}
	}

	params := DefaultChatParams()
	params.Model = defaultModelOf(a.activeProvider, a.settings[a.activeProvider])
	params = params.apply(stored)
	if stored.SystemPrompt == nil || *stored.SystemPrompt == "" {
		params.SystemPrompt = a.preset.Prompt()
	}
	if params.Model == "" {
		params.Model = defaultModelOf(a.activeProvider, a.settings[a.activeProvider])
	}
	a.params = params

	projects, _, err := LoadJSON[[]CodeProject](ctx, c, KeySavedCodes, nil)
	if err != nil {
		return err
	}
	if projects == nil {
		projects = []CodeProject{}
	}
	a.projects = projects

	return a.loadConversations(ctx)
}

func (a *App) loadSettings(ctx context.Context) error {
	legacy := &Legacy[APISettings]{
		Key: LegacyKeyAPIConfigs,
		Parse: func(raw string) Result[APISettings] {
			res := parseLegacyCredentials(raw, a.newID)
			v, err := res.Value()
			if err != nil || res.skip {
				return res
			}
			sealed, err := a.sealSettings(v)
			if err != nil {
				a.logger.Error().Err(err).Msg("cannot seal migrated api keys, keeping legacy config")
				return Skip[APISettings]()
			}
			return Ok(sealed)
		},
	}
	loaded, err := Load[APISettings](ctx, a.codec, KeyAPISettings, nil, legacy)
	if err != nil {
		return err
	}

	settings := defaultAPISettings()
	for _, p := range providerOrder {
		ps, ok := loaded[p]
		if !ok {
			continue
		}
		merged := settings[p]
		merged.Credentials = a.openCredentials(p, ps.Credentials)
		if ps.DefaultModel != "" {
			merged.DefaultModel = ps.DefaultModel
		}
		if p == ProviderOpenRouter {
			merged.Endpoint = ps.Endpoint
		}
		merged.normalize()
		settings[p] = merged
	}
	a.settings = settings
	return nil
}

// openCredentials unseals secrets. Entries whose secret cannot be opened,
// for example after the sealing key was retired, are dropped.
func (a *App) openCredentials(p Provider, in []Credential) []Credential {
	out := make([]Credential, 0, len(in))
	for _, cred := range in {
		if cred.ID == "" {
			cred.ID = a.newID("key")
		}
		if a.sealer != nil {
			secret, err := a.sealer.Open(cred.Secret)
			if err != nil {
				a.logger.Error().Err(err).Str("provider", string(p)).Str("credential", cred.ID).
					Msg("dropping api key that cannot be unsealed")
				continue
			}
			cred.Secret = secret
		}
		out = append(out, cred)
	}
	return out
}

func (a *App) sealSettings(in APISettings) (APISettings, error) {
	out := in.clone()
	if a.sealer == nil {
		return out, nil
	}
	for p, ps := range out {
		for i := range ps.Credentials {
			sealed, err := a.sealer.Seal(ps.Credentials[i].Secret)
			if err != nil {
				return nil, fmt.Errorf("seal %s key %s: %w", p, ps.Credentials[i].ID, err)
			}
			ps.Credentials[i].Secret = sealed
		}
		out[p] = ps
	}
	return out, nil
}

func (a *App) loadConversations(ctx context.Context) error {
	c := a.codec
	convs, _, err := LoadJSON[[]Conversation](ctx, c, KeyConversations, nil)
	if err != nil {
		return err
	}
	now := a.now()
	for i := range convs {
		if convs[i].ID == "" {
			convs[i].ID = a.newID("conv")
		}
		if convs[i].Messages == nil {
			convs[i].Messages = []Message{}
		}
		if convs[i].CreatedAt.IsZero() {
			convs[i].CreatedAt = now
		}
		if convs[i].UpdatedAt.IsZero() {
			convs[i].UpdatedAt = now
		}
	}

	if len(convs) == 0 {
		migrated, _, err := MigrateLegacy(ctx, c, KeyConversations, Legacy[[]Conversation]{
			Key: LegacyKeyChatHistory,
			Parse: func(raw string) Result[[]Conversation] {
				return parseLegacyHistory(raw, now, a.newID, a.logger)
			},
		})
		if err != nil {
			return err
		}
		convs = migrated
	}

	activeID, _, err := LoadRaw(ctx, c, KeyActiveConversationID)
	if err != nil {
		return err
	}
	a.convs.items = convs
	a.convs.sort()
	a.convs.selectID(activeID)
	return nil
}

// commit schedules a background save. Callers hold a.mu.
func (a *App) commit() {
	a.rev++
	select {
	case <-a.done:
		a.saveLate()
		return
	default:
	}
	select {
	case a.dirty <- struct{}{}:
	default:
	}
}

// saveLate persists a mutation that arrived after Close stopped the save
// loop. Callers hold a.mu.
func (a *App) saveLate() {
	a.logger.Warn().Uint64("rev", a.rev).Msg("state changed after close, saving synchronously")
	ctx, cancel := context.WithTimeout(context.Background(), a.saveTimeout)
	defer cancel()
	if err := a.save(ctx, a.snapshotLocked(), a.rev); err != nil {
		a.logger.Error().Err(err).Msg("late state save failed")
	}
}

func (a *App) persistLoop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.dirty:
			ctx, cancel := context.WithTimeout(context.Background(), a.saveTimeout)
			if err := a.Flush(ctx); err != nil {
				a.logger.Error().Err(err).Msg("state save failed")
			}
			cancel()
		case <-a.done:
			return
		}
	}
}

// Flush writes every slice synchronously and reports any failure.
func (a *App) Flush(ctx context.Context) error {
	a.mu.Lock()
	snap, rev := a.snapshotLocked(), a.rev
	a.mu.Unlock()
	return a.save(ctx, snap, rev)
}

// save writes snap unless a newer revision is already stored. a.mu must not
// be acquired while saveMu is held.
func (a *App) save(ctx context.Context, snap Snapshot, rev uint64) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	if rev < a.savedRev {
		return nil
	}
	err := a.saveAll(ctx, snap)
	if a.metrics != nil {
		if err != nil {
			a.metrics.StateSaveErrors.Inc()
		} else {
			a.metrics.StateSaves.Inc()
		}
	}
	if err == nil {
		a.savedRev = rev
	}
	return err
}

// saveAll writes every slice. A failure on one key does not stop the rest,
// so slices can end up out of step with each other.
func (a *App) saveAll(ctx context.Context, s Snapshot) error {
	c := a.codec
	var errs []error

	errs = append(errs, SaveRaw(ctx, c, KeyTheme, string(s.Theme)))

	sealed, err := a.sealSettings(s.Settings)
	if err != nil {
		errs = append(errs, err)
	} else {
		stamp := a.now().Format(time.RFC3339Nano)
		stored := make(map[Provider]storedProviderSettings, len(sealed))
		for p, ps := range sealed {
			stored[p] = storedProviderSettings{ProviderSettings: ps, LastUpdated: stamp}
		}
		errs = append(errs, SaveJSON(ctx, c, KeyAPISettings, stored))
	}

	errs = append(errs,
		SaveRaw(ctx, c, KeyActiveProvider, string(s.ActiveProvider)),
		SaveJSON(ctx, c, KeyChatParams, s.ChatParams),
		SaveRaw(ctx, c, KeyPreset, string(s.Preset)),
		SaveJSON(ctx, c, KeySavedCodes, s.Projects),
		SaveJSON(ctx, c, KeyConversations, s.Conversations),
	)
	if s.ActiveConversationID != "" {
		errs = append(errs, SaveRaw(ctx, c, KeyActiveConversationID, s.ActiveConversationID))
	} else {
		errs = append(errs, DeleteKey(ctx, c, KeyActiveConversationID))
	}
	return errors.Join(errs...)
}

// Close stops background saving and flushes once more. Mutations after Close
// are saved synchronously by the mutating call.
func (a *App) Close(ctx context.Context) error {
	var err error
	a.closeOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
		err = a.Flush(ctx)
	})
	return err
}

// StoredKeys lists the keys present in the backing store. ok is false when
// the store cannot enumerate its keys.
func (a *App) StoredKeys(ctx context.Context) (keys []string, ok bool, err error) {
	lister, ok := a.codec.kv.(KeyLister)
	if !ok {
		return nil, false, nil
	}
	keys, err = lister.Keys(ctx)
	if err != nil {
		return nil, true, fmt.Errorf("list stored keys: %w", err)
	}
	return keys, true, nil
}

func (a *App) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *App) snapshotLocked() Snapshot {
	return Snapshot{
		Theme:                a.theme,
		View:                 a.view,
		ActiveProvider:       a.activeProvider,
		Settings:             a.settings.clone(),
		ChatParams:           a.params.Clone(),
		Preset:               a.preset,
		Conversations:        a.convs.snapshot(),
		ActiveConversationID: a.convs.activeID,
		Projects:             append([]CodeProject{}, a.projects...),
		ActiveEditingID:      a.editingID,
	}
}

func (a *App) Theme() Theme {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.theme
}

func (a *App) SetTheme(t Theme) error {
	if !t.Valid() {
		return fmt.Errorf("theme %q: %w", t, ErrNotFound)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.theme = t
	a.commit()
	return nil
}

func (a *App) ToggleTheme() Theme {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.theme == ThemeDark {
		a.theme = ThemeLight
	} else {
		a.theme = ThemeDark
	}
	a.commit()
	return a.theme
}

func (a *App) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

func (a *App) SetView(v View) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.view = v
}

func (a *App) ActiveProvider() Provider {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeProvider
}

func (a *App) Preset() Preset {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.preset
}

// Target is everything a provider call needs, read in one step.
type Target struct {
	Provider   Provider
	Credential Credential
	Endpoint   string
	Params     ChatParams
}

// ChatTarget resolves the active provider's usable credential together with
// the current chat parameters.
func (a *App) ChatTarget() (Target, error) {
	a.mu.Lock()
	p := a.activeProvider
	a.mu.Unlock()
	return a.TargetFor(p)
}

// TargetFor resolves p's usable credential. When p is not the active
// provider the model is p's default instead of the chat model.
func (a *App) TargetFor(p Provider) (Target, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ps, err := a.settingsFor(p)
	if err != nil {
		return Target{}, err
	}
	cred, ok := ps.Usable()
	if !ok {
		return Target{}, fmt.Errorf("%w %s", ErrMissingCredential, p)
	}
	params := a.params.Clone()
	if p != a.activeProvider {
		params.Model = defaultModelOf(p, ps)
	}
	return Target{Provider: p, Credential: cred, Endpoint: ps.Endpoint, Params: params}, nil
}
