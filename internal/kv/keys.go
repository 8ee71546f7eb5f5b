package kv

import "strings"

// Namespace groups keys per logical feature so artifacts never collide.
type Namespace string

const (
	NamespaceCart    Namespace = "cart"
	NamespaceBooking Namespace = "booking"
	NamespaceAuth    Namespace = "auth"
	NamespaceCatalog Namespace = "catalog"
)

// Key names and their lifecycles.
//
//	cart:<owner>:cachedCartItems
//	    both tiers, no TTL. Rewritten after every successful load or
//	    mutation. An empty list is a valid value.
//	booking:<itemType>:bookingFormDraft
//	    cross-session tier, TTL = draft TTL. Rewritten on each debounced save,
//	    deleted on invalidation or on a failed restore check.
//	booking:<itemType>:resetMarker
//	    both tiers, TTL = reset marker TTL. Set on invalidation, cleared on the
//	    next restore or by a save stamped after it.
//	auth:mirror:<clientId>:userId, auth:mirror:<clientId>:userEmail,
//	auth:mirror:<clientId>:user
//	    cross-session tier, no TTL, one set per client. Rewritten whenever
//	    the identity provider confirms a session, deleted when it denies one
//	    or on sign-out.
//	catalog:<itemType>:prices
//	    cross-session tier, TTL = catalog TTL.
const (
	NameCartItems   = "cachedCartItems"
	NameDraft       = "bookingFormDraft"
	NameResetMarker = "resetMarker"
	NameUserID      = "userId"
	NameUserEmail   = "userEmail"
	NameUser        = "user"
	NamePrices      = "prices"

	ScopeMirror = "mirror"
)

// MirrorScope scopes the identity mirror to one client, so a device never
// falls back to the identity another device confirmed.
func MirrorScope(clientID string) string {
	if clientID == "" {
		clientID = "default"
	}
	return ScopeMirror + ":" + clientID
}

// Key builds "<namespace>:<scope>:<name>".
func Key(namespace Namespace, scope, name string) string {
	return strings.Join([]string{string(namespace), scope, name}, ":")
}
