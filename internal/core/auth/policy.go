package auth

import (
	"fmt"

	"github.com/metacode/fiches-api/internal/core/domain"
)

// Action is an operation on records subject to the access policy.
type Action string

const (
	ActionCreate             Action = "create"
	ActionRead               Action = "read"
	ActionReadAll            Action = "read_all"
	ActionUpdateVisibility   Action = "update_visibility"
	ActionUpdateDownloadable Action = "update_downloadable"
	ActionUpdate             Action = "update"
	ActionDelete             Action = "delete"
	ActionBulkCreate         Action = "bulk_create"
	ActionSearch             Action = "search"
	ActionStats              Action = "stats"
)

type rule struct {
	public    bool
	adminOnly bool
}

var policy = map[Action]rule{
	ActionRead:               {public: true},
	ActionSearch:             {public: true},
	ActionCreate:             {},
	ActionReadAll:            {},
	ActionUpdateVisibility:   {},
	ActionUpdateDownloadable: {},
	ActionUpdate:             {},
	ActionBulkCreate:         {},
	ActionStats:              {},
	ActionDelete:             {adminOnly: true},
}

// Decision is the outcome of Authorize. Reason is nil when Allowed.
type Decision struct {
	Allowed bool
	Reason  error
}

func allow() Decision            { return Decision{Allowed: true} }
func deny(reason error) Decision { return Decision{Reason: reason} }

// Authorize evaluates the access policy for action. identity is nil for
// anonymous callers.
func Authorize(identity *domain.Identity, action Action) Decision {
	r, ok := policy[action]
	if !ok {
		return deny(fmt.Errorf("%w: unknown action %q", domain.ErrDenied, action))
	}
	if r.public {
		return allow()
	}
	if identity == nil {
		return deny(domain.ErrMissingCredential)
	}
	if r.adminOnly && !identity.IsAdmin() {
		return deny(fmt.Errorf("%w: %s requires role %s", domain.ErrDenied, action, domain.RoleAdmin))
	}
	return allow()
}
