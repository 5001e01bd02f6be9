package oauth

import "github.com/larderhq/larder/internal/auth"

// Scopes the consent screen can grant.
const (
	ScopeRecipesRead  = "recipes:read"
	ScopeRecipesWrite = "recipes:write"
	ScopeGroceryRead  = "grocery:read"
	ScopeGroceryWrite = "grocery:write"
)

var knownScopes = map[string]string{
	ScopeRecipesRead:  "Read your recipes",
	ScopeRecipesWrite: "Create and edit recipes",
	ScopeGroceryRead:  "Read your grocery list",
	ScopeGroceryWrite: "Add and check off grocery items",
}

// ScopeDescription returns the consent-screen text for a scope, or the scope
// itself if it has no registered description.
func ScopeDescription(scope string) string {
	if d, ok := knownScopes[scope]; ok {
		return d
	}
	return scope
}

// ValidScope reports whether every requested scope is known.
func ValidScope(scope string) bool {
	scopes := SplitScope(scope)
	if len(scopes) == 0 {
		return false
	}
	for _, s := range scopes {
		if _, ok := knownScopes[s]; !ok {
			return false
		}
	}
	return true
}

// toolScopes maps tool names to the scopes required to call them. A tool
// absent from the map, or mapped to no scopes, is public.
var toolScopes = map[string][]string{
	"list_recipes":     {ScopeRecipesRead},
	"get_recipe":       {ScopeRecipesRead},
	"search_recipes":   {ScopeRecipesRead},
	"create_recipe":    {ScopeRecipesWrite},
	"update_recipe":    {ScopeRecipesWrite},
	"get_grocery_list": {ScopeGroceryRead},
	"add_grocery_item": {ScopeGroceryWrite},
	"ping":             {},
}

// IsAuthorizedForTool decides whether a grant (nil for anonymous callers)
// may invoke the named tool. Public tools need no grant; protected tools
// are denied when there is no grant or it carries none of the required
// scopes.
func IsAuthorizedForTool(g *auth.Grant, tool string) bool {
	required := toolScopes[tool]
	if len(required) == 0 {
		return true
	}
	if g == nil {
		return false
	}
	for _, scope := range required {
		if g.HasScope(scope) {
			return true
		}
	}
	return false
}
