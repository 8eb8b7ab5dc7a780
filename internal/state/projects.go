package state

import "fmt"

func (a *App) projectIndex(id string) int {
	if id == "" {
		return -1
	}
	for i, p := range a.projects {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// AddProject saves a new code project at the end of the list.
func (a *App) AddProject(name, code string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	p := CodeProject{
		ID:        a.newID("code"),
		Name:      name,
		Code:      code,
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.projects = append(a.projects, p)
	a.commit()
	return p.ID
}

func (a *App) UpdateProject(id string, upd ProjectUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := a.projectIndex(id)
	if i < 0 {
		return fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	if upd.Name != nil {
		a.projects[i].Name = *upd.Name
	}
	if upd.Code != nil {
		a.projects[i].Code = *upd.Code
	}
	a.projects[i].UpdatedAt = a.now()
	a.commit()
	return nil
}

// DeleteProject removes id and clears the editing pointer if it targeted id.
func (a *App) DeleteProject(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := a.projectIndex(id)
	if i < 0 {
		return fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	a.projects = append(a.projects[:i:i], a.projects[i+1:]...)
	if a.editingID == id {
		a.editingID = ""
	}
	a.commit()
	return nil
}

// SetActiveEditing points the editor at id without checking that it exists.
// A non-empty id also switches to the coding view; an empty id clears the
// pointer.
func (a *App) SetActiveEditing(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.editingID = id
	if id != "" {
		a.view = ViewCoding
	}
	a.commit()
}

// ActiveEditing resolves the editing pointer. A dangling pointer reads as no
// project.
func (a *App) ActiveEditing() (CodeProject, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := a.projectIndex(a.editingID)
	if i < 0 {
		return CodeProject{}, false
	}
	return a.projects[i], true
}

func (a *App) Project(id string) (CodeProject, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := a.projectIndex(id)
	if i < 0 {
		return CodeProject{}, false
	}
	return a.projects[i], true
}

func (a *App) Projects() []CodeProject {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]CodeProject{}, a.projects...)
}
