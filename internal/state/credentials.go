package state

import "fmt"

func (ps ProviderSettings) clone() ProviderSettings {
	ps.Credentials = append([]Credential(nil), ps.Credentials...)
	if ps.Credentials == nil {
		ps.Credentials = []Credential{}
	}
	return ps
}

// Active returns the provider's active credential, if any.
func (ps ProviderSettings) Active() (Credential, bool) {
	for _, c := range ps.Credentials {
		if c.IsActive {
			return c, true
		}
	}
	return Credential{}, false
}

// Usable reports an active credential with a non-empty secret.
func (ps ProviderSettings) Usable() (Credential, bool) {
	c, ok := ps.Active()
	if !ok || c.Secret == "" {
		return Credential{}, false
	}
	return c, true
}

func (ps *ProviderSettings) indexOf(id string) int {
	for i, c := range ps.Credentials {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// add appends a credential, active only when no other entry is.
func (ps *ProviderSettings) add(id, label, secret string) Credential {
	_, hasActive := ps.Active()
	c := Credential{ID: id, Label: label, Secret: secret, IsActive: !hasActive}
	ps.Credentials = append(ps.Credentials, c)
	return c
}

func (ps *ProviderSettings) update(id string, upd CredentialUpdate) bool {
	i := ps.indexOf(id)
	if i < 0 {
		return false
	}
	if upd.Label != nil {
		ps.Credentials[i].Label = *upd.Label
	}
	if upd.Secret != nil {
		ps.Credentials[i].Secret = *upd.Secret
	}
	return true
}

// remove deletes a credential and promotes the first remaining one when the
// active entry went away.
func (ps *ProviderSettings) remove(id string) bool {
	i := ps.indexOf(id)
	if i < 0 {
		return false
	}
	wasActive := ps.Credentials[i].IsActive
	rest := make([]Credential, 0, len(ps.Credentials)-1)
	rest = append(rest, ps.Credentials[:i]...)
	rest = append(rest, ps.Credentials[i+1:]...)
	ps.Credentials = rest

	if wasActive && len(ps.Credentials) > 0 {
		if _, ok := ps.Active(); !ok {
			ps.Credentials[0].IsActive = true
		}
	}
	return true
}

func (ps *ProviderSettings) activate(id string) bool {
	if ps.indexOf(id) < 0 {
		return false
	}
	for i := range ps.Credentials {
		ps.Credentials[i].IsActive = ps.Credentials[i].ID == id
	}
	return true
}

// normalize restores the single-active invariant on data read from storage:
// the first active entry wins, and a list with none gets its first promoted.
func (ps *ProviderSettings) normalize() {
	if ps.Credentials == nil {
		ps.Credentials = []Credential{}
	}
	seen := false
	for i := range ps.Credentials {
		if ps.Credentials[i].IsActive {
			if seen {
				ps.Credentials[i].IsActive = false
			}
			seen = true
		}
	}
	if !seen && len(ps.Credentials) > 0 {
		ps.Credentials[0].IsActive = true
	}
}

func (a *App) settingsFor(p Provider) (ProviderSettings, error) {
	if !p.Valid() {
		return ProviderSettings{}, fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}
	return a.settings[p], nil
}

// AddCredential appends a credential to p. Callers validate label and secret.
func (a *App) AddCredential(p Provider, label, secret string) (Credential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ps, err := a.settingsFor(p)
	if err != nil {
		return Credential{}, err
	}
	c := ps.add(a.newID("key"), label, secret)
	a.settings[p] = ps
	a.commit()
	return c, nil
}

func (a *App) UpdateCredential(p Provider, id string, upd CredentialUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ps, err := a.settingsFor(p)
	if err != nil {
		return err
	}
	if !ps.update(id, upd) {
		return fmt.Errorf("credential %q: %w", id, ErrNotFound)
	}
	a.settings[p] = ps
	a.commit()
	return nil
}

// DeleteCredential removes a credential. When p is the active provider the
// chat model is re-derived: the provider default while an active credential
// remains, the hardcoded fallback once none does.
func (a *App) DeleteCredential(p Provider, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ps, err := a.settingsFor(p)
	if err != nil {
		return err
	}
	if !ps.remove(id) {
		return fmt.Errorf("credential %q: %w", id, ErrNotFound)
	}
	a.settings[p] = ps

	if p == a.activeProvider {
		if _, ok := ps.Active(); ok {
			a.params.Model = defaultModelOf(p, ps)
		} else {
			a.params.Model = FallbackModel(p)
		}
	}
	a.commit()
	return nil
}

// SetActiveCredential makes id the only active credential of p.
func (a *App) SetActiveCredential(p Provider, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ps, err := a.settingsFor(p)
	if err != nil {
		return err
	}
	if !ps.activate(id) {
		return fmt.Errorf("credential %q: %w", id, ErrNotFound)
	}
	a.settings[p] = ps
	if p == a.activeProvider {
		a.params.Model = defaultModelOf(p, ps)
	}
	a.commit()
	return nil
}

// SetDefaultModel changes p's default model. The chat model follows only when
// p is active and has a usable credential.
func (a *App) SetDefaultModel(p Provider, model string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ps, err := a.settingsFor(p)
	if err != nil {
		return err
	}
	ps.DefaultModel = model
	a.settings[p] = ps
	if p == a.activeProvider {
		if _, ok := ps.Usable(); ok {
			a.params.Model = model
		}
	}
	a.commit()
	return nil
}

// SetEndpoint overrides the aggregator's base URL. Other providers ignore it.
func (a *App) SetEndpoint(p Provider, endpoint string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ps, err := a.settingsFor(p)
	if err != nil {
		return err
	}
	if p != ProviderOpenRouter {
		return nil
	}
	ps.Endpoint = endpoint
	a.settings[p] = ps
	a.commit()
	return nil
}

func (a *App) ProviderSettings(p Provider) (ProviderSettings, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ps, err := a.settingsFor(p)
	if err != nil {
		return ProviderSettings{}, err
	}
	return ps.clone(), nil
}

func defaultModelOf(p Provider, ps ProviderSettings) string {
	if ps.DefaultModel != "" {
		return ps.DefaultModel
	}
	return FallbackModel(p)
}
