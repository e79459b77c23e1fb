// Package guard holds the pure route-gating decision functions. A guard
// never performs I/O and never mutates session state; it maps one session
// snapshot and one route rule to exactly one decision.
package guard

import (
	"fmt"

	"casalista/models"
	"casalista/session"
)

type Decision int

const (
	// Suspend: nothing conclusive can be rendered yet (resolution in
	// flight, or a profile fetch error that must not cause a redirect loop).
	Suspend Decision = iota
	Allow
	RedirectLogin
	RedirectUnauthorized
	RedirectProfileCompletion
)

func (d Decision) String() string {
	switch d {
	case Suspend:
		return "suspend"
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect-login"
	case RedirectUnauthorized:
		return "redirect-unauthorized"
	case RedirectProfileCompletion:
		return "redirect-profile-completion"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Known client-side routes.
const (
	RouteHome         = "/"
	RouteLogin        = "/login"
	RouteAgentHouse   = "/agent/:agentId/house/:houseId?"
	RouteProfile      = "/my-profile"
	RouteAddListing   = "/my-profile/add-listing"
	RouteMyListings   = "/my-profile/my-listings"
	RouteUnauthorized = "/unauthorized"
)

// Target returns the path a redirect decision points at, or "" for
// non-redirect decisions.
func (d Decision) Target() string {
	switch d {
	case RedirectLogin:
		return RouteLogin
	case RedirectUnauthorized:
		return RouteUnauthorized
	case RedirectProfileCompletion:
		return RouteProfile
	default:
		return ""
	}
}

// Rule describes what a route demands from the session.
type Rule struct {
	Path                string `yaml:"path"`
	RequireOwner        bool   `yaml:"require_owner"`
	RequireSubscription bool   `yaml:"require_subscription"`
}

// OwnerRule is the guard variant for the admin/home view: the profile role
// must be exactly "owner".
func OwnerRule(path string) Rule {
	return Rule{Path: path, RequireOwner: true}
}

// SubscriberRule is the general variant for agent self-service pages: any
// authenticated profile with an active subscription.
func SubscriberRule(path string) Rule {
	return Rule{Path: path, RequireSubscription: true}
}

// Evaluate runs the decision table, first match wins. A redirect that would
// point at the route under evaluation degrades to Allow so a guard can
// never send the user where they already are.
func Evaluate(rule Rule, snap session.Snapshot) Decision {
	d := evaluate(rule, snap)
	if target := d.Target(); target != "" && target == rule.Path {
		return Allow
	}
	return d
}

func evaluate(rule Rule, snap session.Snapshot) Decision {
	if snap.AuthLoading || snap.Profile.Status == session.ProfileUnresolved {
		return Suspend
	}

	if snap.Identity == nil {
		return RedirectLogin
	}

	if snap.Profile.Status == session.ProfileError {
		// A store error is not "unregistered". Redirecting here would loop;
		// the page surfaces a retry instead.
		return Suspend
	}

	if rule.RequireOwner {
		if snap.Profile.Status != session.ProfilePresent || snap.Profile.Profile.Role != models.RoleOwner {
			return RedirectUnauthorized
		}
	}

	if snap.Profile.Status == session.ProfileAbsent {
		if rule.Path == RouteProfile {
			// Let the profile page create the missing record.
			return Allow
		}
		return RedirectProfileCompletion
	}

	if rule.RequireSubscription && !snap.Profile.Profile.SubscriptionActive {
		return RedirectUnauthorized
	}

	return Allow
}
