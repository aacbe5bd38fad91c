package flapjackapi

import (
	"context"

	"github.com/flapjack/flapjack/pkg/keystore"
)

type identityKey struct{}

// identity is the authenticated actor resolved by AuthMiddleware: the
// matched ApiKey, the raw credential presented (so secured-key restrictions
// can be applied at the handler level), and the tenant namespace the
// x-algolia-application-id header selects.
type identity struct {
	Key          keystore.ApiKey
	RawKey       string
	Tenant       string
	Restrictions *keystore.SecuredKeyRestrictions
}

func contextWithIdentity(ctx context.Context, id identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identityFromContext(ctx context.Context) (identity, bool) {
	id, ok := ctx.Value(identityKey{}).(identity)
	return id, ok
}
