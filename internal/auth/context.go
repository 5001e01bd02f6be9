package auth

import "context"

type sessionKey struct{}
type grantKey struct{}

// AuthContext describes an authenticated first-party session.
type AuthContext struct {
	UserID    int64
	Email     string
	Role      string
	SessionID int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, sessionKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(sessionKey{}).(AuthContext)
	return ac, ok
}

func IsOwner(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == "owner"
}

// Grant describes a verified OAuth access token presented to the resource
// server: which client is acting, for which user, with which scopes.
type Grant struct {
	ClientID string
	UserID   int64
	Scopes   []string
}

// HasScope reports whether the grant carries the named scope.
func (g *Grant) HasScope(scope string) bool {
	if g == nil {
		return false
	}
	for _, s := range g.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func WithGrant(ctx context.Context, g *Grant) context.Context {
	return context.WithValue(ctx, grantKey{}, g)
}

// GrantFromContext returns the verified grant, or nil for anonymous calls.
func GrantFromContext(ctx context.Context) *Grant {
	g, _ := ctx.Value(grantKey{}).(*Grant)
	return g
}
