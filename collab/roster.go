package collab

import (
	"errors"
	"strings"
	"sync"

	"github.com/zlnvch/flipbook/models"
)

var (
	ErrEmptyUsername       = errors.New("please enter a username")
	ErrUnknownUser         = errors.New("username not found in friend list")
	ErrAlreadyInvited      = errors.New("that username is already invited")
	ErrInviteNotFound      = errors.New("invite does not exist")
	ErrOwnerImmutable      = errors.New("the book owner cannot be removed")
	ErrCollaboratorMissing = errors.New("collaborator does not exist")
)

// DefaultDirectory lists the users that can be invited when no other
// directory is configured.
var DefaultDirectory = []string{"Sara", "Omar", "Lina", "Noor", "Maya", "Yousef"}

// Roster is the local record of who shares a book.
type Roster struct {
	mu        sync.RWMutex
	state     models.CollabState
	directory []string
}

// NewRoster starts a roster with the owner as sole collaborator. An empty
// directory allows inviting any name.
func NewRoster(bookId, owner string, directory []string) *Roster {
	return &Roster{
		state: models.CollabState{
			BookId: bookId,
			Owner:  owner,
			Collaborators: []models.Collaborator{{
				Username: owner,
				Role:     models.RoleOwner,
				Color:    models.ColorForName(owner),
			}},
			Invites: []models.Invite{},
		},
		directory: directory,
	}
}

// State returns a copy with the owner listed first.
func (r *Roster) State() models.CollabState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := r.state
	st.Collaborators = make([]models.Collaborator, 0, len(r.state.Collaborators))
	for _, c := range r.state.Collaborators {
		if c.Role == models.RoleOwner {
			st.Collaborators = append(st.Collaborators, c)
		}
	}
	for _, c := range r.state.Collaborators {
		if c.Role != models.RoleOwner {
			st.Collaborators = append(st.Collaborators, c)
		}
	}
	st.Invites = append([]models.Invite{}, r.state.Invites...)
	return st
}

func (r *Roster) PendingInvites() []models.Invite {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.Invite{}
	for _, inv := range r.state.Invites {
		if inv.Status == models.InvitePending {
			out = append(out, inv)
		}
	}
	return out
}

func (r *Roster) Invite(username string) error {
	name := strings.TrimSpace(username)
	if name == "" {
		return ErrEmptyUsername
	}
	if len(r.directory) > 0 && !r.inDirectory(name) {
		return ErrUnknownUser
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, inv := range r.state.Invites {
		if models.SameName(inv.Username, name) {
			return ErrAlreadyInvited
		}
	}
	for _, c := range r.state.Collaborators {
		if models.SameName(c.Username, name) {
			return ErrAlreadyInvited
		}
	}

	r.state.Invites = append(r.state.Invites, models.Invite{Username: name, Status: models.InvitePending})
	return nil
}

func (r *Roster) inDirectory(name string) bool {
	for _, known := range r.directory {
		if models.SameName(known, name) {
			return true
		}
	}
	return false
}

// Accept marks an invite accepted and adds the user as a collaborator.
func (r *Roster) Accept(username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, inv := range r.state.Invites {
		if inv.Username == username {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrInviteNotFound
	}

	invites := append([]models.Invite{}, r.state.Invites...)
	invites[idx].Status = models.InviteAccepted
	r.state.Invites = invites

	for _, c := range r.state.Collaborators {
		if c.Username == username {
			return nil
		}
	}
	r.state.Collaborators = append(append([]models.Collaborator{}, r.state.Collaborators...), models.Collaborator{
		Username: username,
		Role:     models.RoleCollaborator,
		Color:    models.ColorForName(username),
	})
	return nil
}

func (r *Roster) RemoveInvite(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Invites = withoutInvite(r.state.Invites, username)
}

// RemoveCollaborator drops a collaborator together with their invites.
func (r *Roster) RemoveCollaborator(username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if username == r.state.Owner {
		return ErrOwnerImmutable
	}

	next := make([]models.Collaborator, 0, len(r.state.Collaborators))
	for _, c := range r.state.Collaborators {
		if c.Username != username {
			next = append(next, c)
		}
	}
	if len(next) == len(r.state.Collaborators) {
		return ErrCollaboratorMissing
	}
	r.state.Collaborators = next
	r.state.Invites = withoutInvite(r.state.Invites, username)
	return nil
}

// ColorFor returns the collaborator's assigned color, falling back to the
// palette hash.
func (r *Roster) ColorFor(username string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.state.Collaborators {
		if c.Username == username && c.Color != "" {
			return c.Color
		}
	}
	return models.ColorForName(username)
}

func withoutInvite(invites []models.Invite, username string) []models.Invite {
	out := make([]models.Invite, 0, len(invites))
	for _, inv := range invites {
		if inv.Username != username {
			out = append(out, inv)
		}
	}
	return out
}
