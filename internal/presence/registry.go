package presence

import (
	"sort"
	"sync"
)

// Registry tracks which users currently hold live transport handles. A user
// may hold several handles at once (multiple tabs or devices); the user counts
// as online while at least one handle remains. All state is process-local.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]map[string]struct{}
	byHandle map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byUser:   make(map[string]map[string]struct{}),
		byHandle: make(map[string]string),
	}
}

// Register adds handleID to userID's handle set. A handle registered with an
// empty user id is tracked for cleanup but never appears in the online set.
func (r *Registry) Register(userID, handleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHandle[handleID] = userID
	if userID == "" {
		return
	}
	handles, ok := r.byUser[userID]
	if !ok {
		handles = make(map[string]struct{})
		r.byUser[userID] = handles
	}
	handles[handleID] = struct{}{}
}

// Unregister removes handleID from whichever user owns it. Removing the last
// handle removes the user's entry entirely.
func (r *Registry) Unregister(handleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byHandle[handleID]
	if !ok {
		return
	}
	delete(r.byHandle, handleID)
	if userID == "" {
		return
	}
	handles := r.byUser[userID]
	delete(handles, handleID)
	if len(handles) == 0 {
		delete(r.byUser, userID)
	}
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// HandlesOf returns a copy of userID's live handle ids.
func (r *Registry) HandlesOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := make([]string, 0, len(r.byUser[userID]))
	for handleID := range r.byUser[userID] {
		handles = append(handles, handleID)
	}
	return handles
}

// OnlineUserIDs returns a sorted snapshot of users with at least one handle.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}
