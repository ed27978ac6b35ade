package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"

	"github.com/erazemk/corrente/internal/model"
)

// Resources and actions checked by the API.
const (
	ResItems       = "items"
	ResRequests    = "requests"
	ResAllocations = "allocations"
	ResMatches     = "matches"
	ResMissions    = "missions"
	ResUsers       = "users"
	ResLocations   = "locations"
	ResStats       = "stats"
	ResFeed        = "feed"

	ActRead       = "read"
	ActCreate     = "create"
	ActUpdate     = "update"
	ActDelete     = "delete"
	ActTransition = "transition"
	ActCancel     = "cancel"
	ActRank       = "rank"
	ActRun        = "run"
	ActAccept     = "accept"
	ActAdvance    = "advance"
	ActManage     = "manage"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// everyone is the group every role belongs to.
const everyone = "*"

// rolePolicies lists what each role may do. Per-item custody rules are
// enforced separately by the lifecycle table and the item's missions.
var rolePolicies = [][]string{
	{everyone, ResItems, ActRead},
	{everyone, ResItems, ActTransition},
	{everyone, ResRequests, ActRead},
	{everyone, ResMissions, ActRead},
	{everyone, ResLocations, ActRead},
	{everyone, ResFeed, ActRead},

	{string(model.RoleDonor), ResItems, ActCreate},
	{string(model.RoleStorage), ResItems, ActCreate},

	{string(model.RoleRequester), ResRequests, ActCreate},
	{string(model.RoleRequester), ResRequests, ActCancel},
	{string(model.RoleRequester), ResMatches, ActRead},

	{string(model.RoleDistributor), ResMissions, ActAccept},
	{string(model.RoleDistributor), ResMissions, ActAdvance},

	{string(model.RoleManager), ResItems, ActCreate},
	{string(model.RoleManager), ResItems, ActUpdate},
	{string(model.RoleManager), ResItems, ActDelete},
	{string(model.RoleManager), ResRequests, ActCreate},
	{string(model.RoleManager), ResRequests, ActCancel},
	{string(model.RoleManager), ResRequests, ActRank},
	{string(model.RoleManager), ResAllocations, ActRun},
	{string(model.RoleManager), ResMatches, ActRead},
	{string(model.RoleManager), ResMissions, ActAdvance},
	{string(model.RoleManager), ResStats, ActRead},

	{string(model.RoleAdmin), ResUsers, ActManage},
}

// Policy answers whether a role may perform an action on a resource.
type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

// NewPolicy builds the role policy. Admins inherit everything managers may do.
func NewPolicy() (*Policy, error) {
	m, err := casbinmodel.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("loading policy model: %w", err)
	}

	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("creating enforcer: %w", err)
	}

	if _, err := e.AddPolicies(rolePolicies); err != nil {
		return nil, fmt.Errorf("adding policies: %w", err)
	}

	grouping := [][]string{{string(model.RoleAdmin), string(model.RoleManager)}}
	for _, r := range model.Roles {
		grouping = append(grouping, []string{string(r), everyone})
	}
	if _, err := e.AddGroupingPolicies(grouping); err != nil {
		return nil, fmt.Errorf("adding role groups: %w", err)
	}

	return &Policy{enforcer: e}, nil
}

// Allow reports whether role may perform act on obj. Unknown roles are denied.
func (p *Policy) Allow(role model.Role, obj, act string) bool {
	if !role.Valid() {
		return false
	}
	ok, err := p.enforcer.Enforce(string(role), obj, act)
	return err == nil && ok
}

// Capabilities returns the resource/action pairs granted to role, directly or
// through inheritance.
func (p *Policy) Capabilities(role model.Role) [][2]string {
	perms, err := p.enforcer.GetImplicitPermissionsForUser(string(role))
	if err != nil {
		return nil
	}
	out := make([][2]string, 0, len(perms))
	for _, perm := range perms {
		if len(perm) >= 3 {
			out = append(out, [2]string{perm[1], perm[2]})
		}
	}
	return out
}
